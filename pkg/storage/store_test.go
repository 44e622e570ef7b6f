package storage

import (
	"errors"
	"testing"

	"github.com/rhuss/hawkgate/pkg/auth"
)

func TestCheck(t *testing.T) {
	tests := []struct {
		name  string
		creds *auth.Credentials
		want  error
		alg   string
	}{
		{"nil", nil, ErrInvalid, ""},
		{"missing key", &auth.Credentials{ID: "a"}, ErrInvalid, ""},
		{"missing id", &auth.Credentials{Key: "k"}, ErrInvalid, ""},
		{"default algorithm", &auth.Credentials{ID: "a", Key: "k"}, nil, "sha256"},
		{"uppercase", &auth.Credentials{ID: "a", Key: "k", Algorithm: "SHA1"}, nil, "sha1"},
		{"unknown", &auth.Credentials{ID: "a", Key: "k", Algorithm: "md5"}, auth.ErrUnknownAlgorithm, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Check(tt.creds)
			if !errors.Is(err, tt.want) {
				t.Fatalf("Check() = %v, want %v", err, tt.want)
			}
			if err == nil && tt.creds.Algorithm != tt.alg {
				t.Errorf("Algorithm = %q, want %q", tt.creds.Algorithm, tt.alg)
			}
		})
	}
}
