package imap

import "encoding/base64"

func base64Encode(b []byte) string {
	return base64.StdEncoding.EncodeToString(b)
}

func base64Decode(s string) ([]byte, error) {
	return base64.StdEncoding.DecodeString(s)
}

// SASLClient is the subset of github.com/emersion/go-sasl's Client
// interface that Session.Authenticate drives: a mechanism name, an optional
// initial response, and a challenge/response loop.
type SASLClient interface {
	Start() (mech string, ir []byte, err error)
	Next(challenge []byte) (response []byte, err error)
}
