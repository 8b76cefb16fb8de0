package cleaner

import (
	"os"
	"path/filepath"
	"testing"

	"distill-go/pkg/model_caller"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClean_SingleQuotedContent(t *testing.T) {
	raw := `content='这是内容' additional_kwargs={} response_metadata={'token_usage': {'total_tokens': 12}}`
	assert.Equal(t, "这是内容", Clean(raw))
}

func TestClean_DoubleQuotedContentSpansLines(t *testing.T) {
	raw := "content=\"第一行\n第二行 \" usage_metadata={'input_tokens': 3}"
	assert.Equal(t, "第一行\n第二行", Clean(raw))
}

func TestClean_TruncatesAtEarliestMarker(t *testing.T) {
	raw := `content=段落正文 response_metadata={'a': 1} additional_kwargs={}`
	assert.Equal(t, "段落正文", Clean(raw))
}

func TestClean_StripsQuotesAfterTruncation(t *testing.T) {
	raw := `"一段带引号的文字" usage_metadata={}`
	assert.Equal(t, "一段带引号的文字", Clean(raw))
}

func TestClean_IdentityOnCleanText(t *testing.T) {
	text := "本研究聚焦教育评测任务，旨在提升评测的可解释性。"
	assert.Equal(t, text, Clean(text))
	assert.Equal(t, text, Clean("  "+text+"\n"))
}

func TestCleanValue_NonStringPassThrough(t *testing.T) {
	assert.Equal(t, 42, CleanValue(42))
	assert.Nil(t, CleanValue(nil))

	m := map[string]interface{}{"content": "x"}
	assert.Equal(t, m, CleanValue(m))
	assert.Equal(t, "这是内容", CleanValue("content='这是内容'"))
}

func TestPayload_PrefersEnvelope(t *testing.T) {
	assert.Equal(t, "", Payload(nil))
	assert.Equal(t, "正文", Payload(&model_caller.Result{Content: " 正文 "}))
	assert.Equal(t, "正文", Payload(&model_caller.Result{Content: "content='正文' additional_kwargs={}"}))
}

func TestHasMarkers(t *testing.T) {
	assert.True(t, HasMarkers("x additional_kwargs={}"))
	assert.True(t, HasMarkers("content='x'"))
	assert.False(t, HasMarkers("干净的文本"))
}

func TestCleanFile_InPlace(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "teacher_only.jsonl")
	content := `{"id":0,"input":"content='草稿一' additional_kwargs={}","output":"A&B"}
not json

{"id":1,"input":"已经干净","output":"B"}
{"id":2,"input":{"nested":true},"output":"C"}
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	report, err := CleanFile(path, "", nil)
	require.NoError(t, err)
	assert.Equal(t, &FileReport{Total: 4, Cleaned: 1, Malformed: 1}, report)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	expected := `{"id":0,"input":"草稿一","output":"A&B"}
{"id":1,"input":"已经干净","output":"B"}
{"id":2,"input":{"nested":true},"output":"C"}
`
	assert.Equal(t, expected, string(data))

	_, err = os.Stat(path + ".tmp")
	assert.True(t, os.IsNotExist(err))
}

func TestCleanFile_MissingInput(t *testing.T) {
	_, err := CleanFile(filepath.Join(t.TempDir(), "missing.jsonl"), "", nil)
	assert.Error(t, err)
}
