package models

import (
	"encoding/json"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPredictionKeepsUnmodeledKeys(t *testing.T) {
	raw := `{"id":"7","question":"Q?","deadline":100,"yesTotalAmount":"5","status":"active","totalStakes":12,"Verified":true}`

	var p Prediction
	require.NoError(t, json.Unmarshal([]byte(raw), &p))
	assert.Equal(t, "7", p.ID)
	assert.True(t, p.YesTotalAmount.Equal(decimal.NewFromInt(5)))
	require.Len(t, p.Extra, 3)
	assert.NotContains(t, p.Extra, "yesTotalAmount")

	p.USDCYesTotalAmount = decimal.NewFromInt(9)
	out, err := json.Marshal(p)
	require.NoError(t, err)

	var doc map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(out, &doc))
	assert.JSONEq(t, `"active"`, string(doc["status"]))
	assert.JSONEq(t, `12`, string(doc["totalStakes"]))
	assert.JSONEq(t, `true`, string(doc["Verified"]))
	assert.JSONEq(t, `"9"`, string(doc["usdcYesTotalAmount"]))
}

func TestPredictionExtraNeverShadowsModeledFields(t *testing.T) {
	// Keys match case-insensitively, so "ID" is a modeled field, not an extra.
	var p Prediction
	require.NoError(t, json.Unmarshal([]byte(`{"ID":"1","question":"Q?"}`), &p))
	assert.Equal(t, "1", p.ID)
	assert.Empty(t, p.Extra)

	p.Extra = map[string]json.RawMessage{"question": json.RawMessage(`"stale"`), "note": json.RawMessage(`"x"`)}
	out, err := json.Marshal(&p)
	require.NoError(t, err)

	var doc map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(out, &doc))
	assert.JSONEq(t, `"Q?"`, string(doc["question"]))
	assert.JSONEq(t, `"x"`, string(doc["note"]))
}

func TestPredictionWithoutExtrasEncodesAsStruct(t *testing.T) {
	p := Prediction{ID: "1", Question: "Q?"}
	out, err := json.Marshal(p)
	require.NoError(t, err)

	var back Prediction
	require.NoError(t, json.Unmarshal(out, &back))
	assert.Nil(t, back.Extra)
	assert.Equal(t, p.ID, back.ID)
	assert.Equal(t, p.Question, back.Question)
}
