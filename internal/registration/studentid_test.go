package registration

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStudentIDPrefix(t *testing.T) {
	assert.Equal(t, "CS26BT", StudentIDPrefix("CS", "BT", 2026))
	assert.Equal(t, "EE99MT", StudentIDPrefix("EE", "MT", 1999))
}

func TestNextStudentID(t *testing.T) {
	tests := []struct {
		name   string
		prefix string
		lastID string
		want   string
	}{
		{name: "first of prefix", prefix: "CS26BT", lastID: "", want: "CS26BT1001"},
		{name: "increments serial", prefix: "CS26BT", lastID: "CS26BT1042", want: "CS26BT1043"},
		{name: "unparseable serial restarts", prefix: "CS26BT", lastID: "CS26BTabc", want: "CS26BT1001"},
		{name: "last id shorter than prefix", prefix: "CS26BT", lastID: "CS26", want: "CS26BT1001"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, NextStudentID(tt.prefix, tt.lastID))
		})
	}
}
