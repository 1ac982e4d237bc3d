package runtime

import (
	"reflect"
	"testing"

	openai "github.com/sashabaranov/go-openai"
)

func TestThreadMessages(t *testing.T) {
	msgs := []openai.Message{
		{Role: "assistant", FileIds: []string{"file_1", "file_2"}},
		{Role: "user"},
		{Role: "assistant", FileIds: []string{"file_3"}},
	}

	got := threadMessages(msgs)
	if len(got) != 3 {
		t.Fatalf("expected 3 messages, got %d", len(got))
	}
	if got[0].Role != "assistant" || !reflect.DeepEqual(got[0].FileIDs, []string{"file_1", "file_2"}) {
		t.Errorf("unexpected first message: %#v", got[0])
	}
	if len(got[1].FileIDs) != 0 {
		t.Errorf("message without files must map empty: %#v", got[1])
	}
	if len(got[0].Attachments) != 0 {
		t.Errorf("this API carries no attachments, got %#v", got[0].Attachments)
	}
}
