package models

import (
	"errors"
	"testing"
)

func TestQueryRequest_Validate(t *testing.T) {
	tests := []struct {
		name    string
		query   string
		want    string
		wantErr bool
	}{
		{"empty query", "", "", true},
		{"whitespace only", "  \n\t ", "", true},
		{"valid query", "what is a grant?", "what is a grant?", false},
		{"trims", "  hello ", "hello", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q := &QueryRequest{Query: tt.query}
			err := q.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr && !errors.Is(err, ErrInvalidInput) {
				t.Errorf("expected ErrInvalidInput, got %v", err)
			}
			if !tt.wantErr && q.Query != tt.want {
				t.Errorf("Query = %q, want %q", q.Query, tt.want)
			}
		})
	}
}
