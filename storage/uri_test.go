package storage

import (
	"errors"
	"testing"
)

func TestParseURI(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		raw        string
		wantScheme string
		wantPath   string
		wantParam  map[string]string
		wantErr    error
	}{
		{
			name:       "absolute path",
			raw:        "local:///var/data/replica-1",
			wantScheme: "local",
			wantPath:   "/var/data/replica-1",
		},
		{
			name:       "relative path",
			raw:        "local://var/data",
			wantScheme: "local",
			wantPath:   "var/data",
		},
		{
			name:       "memory instance name",
			raw:        "memory://node-1",
			wantScheme: "memory",
			wantPath:   "node-1",
		},
		{
			name:       "params",
			raw:        "local:///data?sync=false",
			wantScheme: "local",
			wantPath:   "/data",
			wantParam:  map[string]string{"sync": "false"},
		},
		{
			name:    "no scheme",
			raw:     "/var/data",
			wantErr: ErrInvalidArgument,
		},
		{
			name:    "no path",
			raw:     "local://",
			wantErr: ErrInvalidArgument,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			uri, err := ParseURI(tt.raw)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("ParseURI(%q) error = %v, want %v", tt.raw, err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseURI(%q) error = %v", tt.raw, err)
			}
			if uri.Scheme != tt.wantScheme {
				t.Fatalf("scheme = %q, want %q", uri.Scheme, tt.wantScheme)
			}
			if uri.Path != tt.wantPath {
				t.Fatalf("path = %q, want %q", uri.Path, tt.wantPath)
			}
			for key, want := range tt.wantParam {
				if got := uri.Param(key, ""); got != want {
					t.Fatalf("param %q = %q, want %q", key, got, want)
				}
			}
		})
	}
}

func TestConnectionURI_Param_Default(t *testing.T) {
	t.Parallel()

	uri, err := ParseURI("local:///data")
	if err != nil {
		t.Fatalf("ParseURI() error = %v", err)
	}
	if got := uri.Param("sync", "true"); got != "true" {
		t.Fatalf("Param() = %q, want default", got)
	}
}

func TestParsePeerID(t *testing.T) {
	t.Parallel()

	tests := []struct {
		raw  string
		want PeerID
	}{
		{"10.0.0.1:7000", PeerID{Addr: "10.0.0.1:7000"}},
		{"10.0.0.1:7000:2", PeerID{Addr: "10.0.0.1:7000", Idx: 2}},
		{"node-a", PeerID{Addr: "node-a"}},
	}
	for _, tt := range tests {
		got, err := ParsePeerID(tt.raw)
		if err != nil {
			t.Fatalf("ParsePeerID(%q) error = %v", tt.raw, err)
		}
		if got != tt.want {
			t.Fatalf("ParsePeerID(%q) = %+v, want %+v", tt.raw, got, tt.want)
		}
		back, err := ParsePeerID(got.String())
		if err != nil || back != got {
			t.Fatalf("round trip of %q = %+v (%v)", tt.raw, back, err)
		}
	}

	if _, err := ParsePeerID(""); !errors.Is(err, ErrInvalidArgument) {
		t.Fatalf("ParsePeerID(\"\") error = %v, want ErrInvalidArgument", err)
	}
}
