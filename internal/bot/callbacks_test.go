package bot

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/uuid"

	"curator_bot/internal/model"
)

func TestCallbackRoundTrip(t *testing.T) {
	id := uuid.NewString()

	tests := []struct {
		name string
		data string
		want callbackData
	}{
		{
			name: "publish",
			data: encodeCallback(actionPublish, id),
			want: callbackData{Action: actionPublish, SubmissionID: id},
		},
		{
			name: "cancel",
			data: encodeCallback(actionCancel, id),
			want: callbackData{Action: actionCancel, SubmissionID: id},
		},
		{
			name: "edit field",
			data: encodeFieldCallback(id, model.FieldTags),
			want: callbackData{Action: actionEditField, SubmissionID: id, Field: model.FieldTags},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseCallback(tt.data)
			if err != nil {
				t.Fatalf("parse %q: %v", tt.data, err)
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("callback mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

// Telegram rejects callback data over 64 bytes, so every payload with a
// UUID submission id must fit under that limit.
func TestCallbackPayloadSize(t *testing.T) {
	id := uuid.NewString()

	payloads := []string{
		encodeCallback(actionConfirm, id),
		encodeCallback(actionPublish, id),
		encodeCallback(actionRegenerate, id),
		encodeFieldCallback(id, model.FieldDescription),
	}
	for _, p := range payloads {
		if len(p) > 64 {
			t.Errorf("payload %q is %d bytes, exceeds 64", p, len(p))
		}
	}
}

func TestParseCallbackRejects(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{name: "empty", data: ""},
		{name: "wrong prefix", data: "feed:publish:sub-1"},
		{name: "missing submission id", data: "post:publish"},
		{name: "field without field name", data: "post:field:sub-1"},
		{name: "unknown field name", data: "post:field:sub-1:title"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := parseCallback(tt.data); err == nil {
				t.Errorf("expected error for %q", tt.data)
			}
		})
	}
}
