package prompt

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsEcho(t *testing.T) {
	assert.True(t, IsEcho(banner))
	assert.True(t, IsEcho("### SAFETY ALERTS"))
	assert.True(t, IsEcho("  - Mention every safety alert listed in the payload in the management plan."))
	assert.True(t, IsEcho("mention every safety alert listed in the payload   in the management plan."))
	assert.True(t, IsEcho(simplifiedHint))

	assert.False(t, IsEcho(""))
	assert.False(t, IsEcho("Do not drive while taking the cough syrup."))
	assert.False(t, IsEcho("Provide a stool sample if diarrhoea persists."))
	assert.False(t, IsEcho("### Plan"))
	assert.False(t, IsEcho("== see above =="))
}

func TestHasEcho(t *testing.T) {
	assert.True(t, HasEcho("Cough for five days.\n### TEMPLATE"))
	assert.False(t, HasEcho("Cough for five days.\nReturn if fever persists."))
}
