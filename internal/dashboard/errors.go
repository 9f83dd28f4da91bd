package dashboard

import "errors"

var (
	ErrInvalidManifest = errors.New("invalid dashboard manifest")
	ErrLogin           = errors.New("dashboard login failed")
	ErrStatus          = errors.New("unexpected response status")
	ErrNoToken         = errors.New("response carried no token")
)
