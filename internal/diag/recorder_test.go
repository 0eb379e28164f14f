package diag

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MimoJanra/SSOPulse/internal/models"
)

func TestRecorderSummaryCountsEveryResult(t *testing.T) {
	r := newRecorder(quietLogger())
	r.add("a", models.LevelSuccess, "ok", nil, "")
	r.add("b", models.LevelSuccess, "ok", nil, "")
	r.add("c", models.LevelWarning, "hmm", nil, "")
	r.add("d", models.LevelCritical, "bad", nil, "")

	s := r.Summary()
	assert.Equal(t, 4, s.Total())
	assert.Equal(t, 2, s[models.LevelSuccess])
	assert.Equal(t, 1, s[models.LevelWarning])
	assert.Equal(t, 1, s[models.LevelCritical])
	assert.Equal(t, models.LevelCritical, s.Worst())

	r.Clear()
	assert.Empty(t, r.Results())
	assert.Equal(t, 0, r.Summary().Total())
}

func TestRecorderNilDetailsSerializeAsEmptyObject(t *testing.T) {
	r := newRecorder(quietLogger())
	res := r.add("check", models.LevelInfo, "msg", nil, "")

	require.NotNil(t, res.Details)

	data, err := json.Marshal(res)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"details":{}`)
}
