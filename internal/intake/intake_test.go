package intake_test

import (
	"context"
	"errors"
	"testing"

	"github.com/ErlanBelekov/triggerd/internal/intake"
)

func TestParseToken(t *testing.T) {
	tests := []struct {
		in      string
		want    int64
		wantErr bool
	}{
		{in: "COMMIT1", want: 1},
		{in: "COMMIT1234", want: 1234},
		{in: "commit77", want: 77},
		{in: "COMMIT0", wantErr: true},
		{in: "COMMIT012", wantErr: true},
		{in: "COMMIT", wantErr: true},
		{in: "COMMIT-3", wantErr: true},
		{in: "TASK12", wantErr: true},
		{in: "COMMIT12x", wantErr: true},
		{in: "COMMIT99999999999999999999", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := intake.ParseToken(tt.in)
			if tt.wantErr {
				if !errors.Is(err, intake.ErrNoToken) {
					t.Fatalf("err = %v, want ErrNoToken", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseToken: %v", err)
			}
			if got != tt.want {
				t.Errorf("ParseToken(%q) = %d, want %d", tt.in, got, tt.want)
			}
		})
	}
}

type commit struct{ id int64 }

var errMissing = errors.New("missing")

func TestReceiver_Resolve(t *testing.T) {
	var asked []int64
	r := intake.NewReceiver(func(_ context.Context, id int64) (commit, error) {
		asked = append(asked, id)
		if id == 404 {
			return commit{}, errMissing
		}
		return commit{id: id}, nil
	})

	got, err := r.Resolve(context.Background(), "COMMIT42+f00d@reply.example.com")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if got.id != 42 {
		t.Errorf("id = %d, want 42", got.id)
	}

	if _, err := r.Resolve(context.Background(), "COMMIT404@reply.example.com"); !errors.Is(err, errMissing) {
		t.Errorf("err = %v, want errMissing", err)
	}

	if _, err := r.Resolve(context.Background(), "bugs@example.com"); !errors.Is(err, intake.ErrNoToken) {
		t.Errorf("err = %v, want ErrNoToken", err)
	}

	if len(asked) != 2 {
		t.Errorf("lookup called %d times, want 2", len(asked))
	}
}
