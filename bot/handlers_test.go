package bot

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	tele "gopkg.in/telebot.v4"
)

func TestParseInterval(t *testing.T) {
	d, skip, err := parseInterval([]string{"45"})
	require.NoError(t, err)
	assert.Equal(t, 45*time.Second, d)
	assert.False(t, skip)

	d, skip, err = parseInterval([]string{"30", "skip"})
	require.NoError(t, err)
	assert.Equal(t, 30*time.Second, d)
	assert.True(t, skip)

	_, _, err = parseInterval(nil)
	assert.Error(t, err)

	_, _, err = parseInterval([]string{"soon"})
	assert.Error(t, err)

	_, _, err = parseInterval([]string{"2"})
	assert.Error(t, err)

	_, _, err = parseInterval([]string{"9000"})
	assert.Error(t, err)
}

func TestFullName(t *testing.T) {
	assert.Equal(t, "Alice", fullName(&tele.User{FirstName: "Alice"}))
	assert.Equal(t, "Alice Smith", fullName(&tele.User{FirstName: "Alice", LastName: "Smith"}))
	assert.Equal(t, "Smith", fullName(&tele.User{LastName: "Smith"}))
	assert.Equal(t, "", fullName(nil))
}

func TestDeckUsageListsRegisteredDecks(t *testing.T) {
	usage := deckUsage()
	assert.Contains(t, usage, "/quiz <deck>")
	assert.Contains(t, usage, "tozai_line")
	assert.Contains(t, usage, "yamanote_line")
}
