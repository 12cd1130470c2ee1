package provider

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"golang.org/x/oauth2"
)

func TestConvertToken_Lifetime(t *testing.T) {
	// testNow is far from the wall clock, so any reading of time.Now would
	// show up as a lifetime of months or years.
	tests := []struct {
		name string
		tok  *oauth2.Token
		want time.Duration
	}{
		{
			name: "expires_in wins",
			tok:  &oauth2.Token{AccessToken: "a", ExpiresIn: 600, Expiry: testNow.Add(time.Hour)},
			want: 10 * time.Minute,
		},
		{
			name: "expiry measured from issue time",
			tok:  &oauth2.Token{AccessToken: "a", Expiry: testNow.Add(45 * time.Minute)},
			want: 45 * time.Minute,
		},
		{
			name: "neither falls back to default",
			tok:  &oauth2.Token{AccessToken: "a"},
			want: 2 * time.Hour,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := convertToken(tt.tok, testNow, 2*time.Hour)

			assert.Equal(t, testNow, got.IssuedAt)
			assert.Equal(t, testNow.Add(tt.want), got.ExpiresAt)
			assert.Equal(t, tt.want, got.ExpiresIn())
		})
	}
}
