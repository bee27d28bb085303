package payload

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestErrorKind(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{name: "nil", err: nil, want: ""},
		{name: "network", err: &NetworkError{URL: "u", StatusCode: 503}, want: KindNetwork},
		{name: "wrapped_network", err: fmt.Errorf("sync: %w", &NetworkError{URL: "u", Err: errors.New("refused")}), want: KindNetwork},
		{name: "manifest", err: &ManifestFormatError{URL: "u", Reason: "bad"}, want: KindManifestFormat},
		{name: "corrupt", err: &CorruptArchiveError{Path: "p", Err: errors.New("eof")}, want: KindCorruptArchive},
		{name: "hash", err: &HashMismatchError{Path: "p"}, want: KindHashMismatch},
		{name: "filesystem", err: &FilesystemError{Op: "write", Path: "p", Err: errors.New("disk full")}, want: KindFilesystem},
		{name: "canceled", err: context.Canceled, want: KindCanceled},
		{name: "canceled_inside_network", err: &NetworkError{URL: "u", Err: context.Canceled}, want: KindCanceled},
		{name: "other", err: errors.New("boom"), want: KindOther},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ErrorKind(tt.err); got != tt.want {
				t.Errorf("ErrorKind() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestNetworkErrorRetryable(t *testing.T) {
	tests := []struct {
		status int
		want   bool
	}{
		{0, true},
		{429, true},
		{500, true},
		{503, true},
		{404, false},
		{403, false},
	}
	for _, tt := range tests {
		e := &NetworkError{StatusCode: tt.status}
		if got := e.retryable(); got != tt.want {
			t.Errorf("status %d retryable = %v, want %v", tt.status, got, tt.want)
		}
	}
}

func TestHashMismatchMessage(t *testing.T) {
	msg := (&HashMismatchError{Path: "p", Expected: "aa", Actual: "bb"}).Error()
	if !strings.Contains(msg, "aa") || !strings.Contains(msg, "bb") {
		t.Errorf("message should carry both digests: %q", msg)
	}
	missing := (&HashMismatchError{Path: "p", Actual: "bb"}).Error()
	if !strings.Contains(missing, "no digest") {
		t.Errorf("unexpected message: %q", missing)
	}
}
