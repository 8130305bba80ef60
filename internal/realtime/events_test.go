package realtime

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeClientEvent(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		want    ClientEvent
		wantErr bool
	}{
		{
			name: "join issue",
			raw:  `{"event":"join_issue","data":{"issueId":"abc"}}`,
			want: JoinIssue{IssueID: "abc"},
		},
		{
			name: "status update",
			raw:  `{"event":"issue_status_update","data":{"issueId":"abc","status":"acknowledged","notes":"on it"}}`,
			want: IssueStatusUpdate{IssueID: "abc", Status: "acknowledged", Notes: "on it"},
		},
		{
			name: "direct message",
			raw:  `{"event":"direct_message","data":{"recipientId":"u2","message":"hi"}}`,
			want: DirectMessage{RecipientID: "u2", Message: "hi"},
		},
		{
			name: "location update",
			raw:  `{"event":"update_location","data":{"lat":40.7,"lng":-74.0}}`,
			want: UpdateLocation{Lat: 40.7, Lng: -74.0},
		},
		{
			name:    "unknown event",
			raw:     `{"event":"reboot_server","data":{}}`,
			wantErr: true,
		},
		{
			name:    "missing issue id",
			raw:     `{"event":"join_issue","data":{"issueId":"  "}}`,
			wantErr: true,
		},
		{
			name:    "missing payload",
			raw:     `{"event":"new_comment"}`,
			wantErr: true,
		},
		{
			name:    "coordinates out of range",
			raw:     `{"event":"update_location","data":{"lat":120,"lng":0}}`,
			wantErr: true,
		},
		{
			name:    "malformed json",
			raw:     `{"event":`,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DecodeClientEvent([]byte(tt.raw))
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
