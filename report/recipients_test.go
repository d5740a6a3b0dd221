package report

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplitRecipients(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want []string
	}{
		{name: "single", in: "a@x.com", want: []string{"a@x.com"}},
		{name: "trims whitespace", in: " a@x.com ,\tb@y.com ", want: []string{"a@x.com", "b@y.com"}},
		{name: "keeps empty entries", in: "a@x.com,,b@y.com", want: []string{"a@x.com", "", "b@y.com"}},
		{name: "keeps trailing empty entry", in: "a@x.com,", want: []string{"a@x.com", ""}},
		{name: "keeps duplicates and order", in: "b@y.com,a@x.com,b@y.com", want: []string{"b@y.com", "a@x.com", "b@y.com"}},
		{name: "no validation", in: "not-an-email", want: []string{"not-an-email"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, SplitRecipients(tt.in))
		})
	}
}

func TestResolveRecipients(t *testing.T) {
	t.Run("explicit wins", func(t *testing.T) {
		got, err := ResolveRecipients("a@x.com, b@y.com", "env@z.com")
		require.NoError(t, err)
		assert.Equal(t, []string{"a@x.com", "b@y.com"}, got)
	})

	t.Run("configured fallback", func(t *testing.T) {
		got, err := ResolveRecipients("", "env@z.com")
		require.NoError(t, err)
		assert.Equal(t, []string{"env@z.com"}, got)
	})

	t.Run("none", func(t *testing.T) {
		got, err := ResolveRecipients("", "")
		require.Error(t, err)
		assert.Nil(t, got)
		assert.Equal(t, CodeConfigurationMissing, CodeOf(err))
		assert.Contains(t, err.Error(), "No recipients specified. Use --recipients or set SMTP_RECIPIENTS env var.")
	})
}
