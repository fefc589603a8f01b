package prompt

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHumanize_ZeroRatesLeaveTextUnchanged(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	out := Humanize("the weather report is ready", HumanizationConfig{}, rng)
	assert.Equal(t, "the weather report is ready", out)
}

func TestHumanize_TypoRateOneAlwaysInjectsATypo(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	out := Humanize("the weather report is ready", HumanizationConfig{TypoRate: 1}, rng)
	assert.NotEqual(t, "the weather report is ready", out)
}

func TestHumanize_ContradictionRateOneAppendsHedge(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	out := Humanize("it's all clear", HumanizationConfig{ContradictionRate: 1}, rng)
	assert.Contains(t, out, "it's all clear")
	assert.True(t, len(out) > len("it's all clear"))
}

func TestHumanize_EmptyTextPassesThrough(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	out := Humanize("", HumanizationConfig{TypoRate: 1, ContradictionRate: 1}, rng)
	assert.Equal(t, "", out)
}
