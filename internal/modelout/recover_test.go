package modelout

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type quizItem struct {
	Q string   `json:"q"`
	O []string `json:"o"`
	A string   `json:"a"`
}

func TestRecordsValidArray(t *testing.T) {
	raw := `[{"q":"What is 2+2?","o":["3","4"],"a":"4"},{"q":"Capital of France?","o":["Paris","Lyon"],"a":"Paris"}]`

	recs := Records(raw)
	require.Len(t, recs, 2)

	var first quizItem
	require.NoError(t, json.Unmarshal(recs[0], &first))
	assert.Equal(t, "What is 2+2?", first.Q)
	assert.Equal(t, []string{"3", "4"}, first.O)
}

func TestRecordsObjectWithArrayField(t *testing.T) {
	raw := `{"notes":"generated from chapter 3","questions":[{"q":"a"},{"q":"b"}]}`

	recs := Records(raw)
	require.Len(t, recs, 2)
}

func TestRecordsObjectPicksFirstArrayInDocumentOrder(t *testing.T) {
	raw := `{"primary":[{"q":"first"}],"secondary":[{"q":"second"},{"q":"third"}]}`

	recs := Records(raw)
	require.Len(t, recs, 1)

	var item quizItem
	require.NoError(t, json.Unmarshal(recs[0], &item))
	assert.Equal(t, "first", item.Q)
}

func TestRecordsObjectWithoutArrayField(t *testing.T) {
	recs := Records(`{"message":"no structured data here","count":3}`)
	assert.Empty(t, recs)
}

func TestRecordsTruncatedResponse(t *testing.T) {
	raw := `[{"q":"2 imes 3?","o":["5","6"],"a":"6"},{"q":"truncated`

	recs := Records(raw)
	require.Len(t, recs, 1)

	var item quizItem
	require.NoError(t, json.Unmarshal(recs[0], &item))
	assert.Equal(t, "2 imes 3?", item.Q)
	assert.Equal(t, "6", item.A)
}

func TestRecordsProsePreamble(t *testing.T) {
	raw := "Here are the questions you asked for:\n" +
		`[{"q":"a","o":[],"a":"x"},{"q":"b","o":[],"a":"y"},{"q":"unfinished`

	recs := Records(raw)
	assert.Len(t, recs, 2)
}

func TestRecordsMarkdownFence(t *testing.T) {
	raw := "```json\n[{\"q\":\"fenced\"}]\n```"

	recs := Records(raw)
	require.Len(t, recs, 1)
}

func TestRecordsByteOrderMark(t *testing.T) {
	raw := "\uFEFF" + `[{"q":"bom-prefixed","o":[],"a":"x"}]`

	recs := Records(raw)
	require.Len(t, recs, 1)

	var item quizItem
	require.NoError(t, json.Unmarshal(recs[0], &item))
	assert.Equal(t, "bom-prefixed", item.Q)
}

func TestRecordsGarbage(t *testing.T) {
	for _, raw := range []string{
		"",
		"   ",
		"I could not process that document.",
		"{{{{((",
		"[no closing bracket and no complete record",
	} {
		assert.Empty(t, Records(raw), "input %q", raw)
	}
}

func TestRecordsEmptyArray(t *testing.T) {
	assert.Empty(t, Records("[]"))
}

func TestDecodeDropsMismatchedRecords(t *testing.T) {
	raw := `[{"q":"ok","o":["1"],"a":"1"},"just a string",{"q":"also ok","o":[],"a":""}]`

	items := Decode[quizItem](raw)
	require.Len(t, items, 2)
	assert.Equal(t, "ok", items[0].Q)
	assert.Equal(t, "also ok", items[1].Q)
}
