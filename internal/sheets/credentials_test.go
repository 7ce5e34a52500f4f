package sheets

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewServiceAccountFetcher_RejectsBadKeys(t *testing.T) {
	_, err := NewServiceAccountFetcher(nil)
	assert.Error(t, err)

	_, err = NewServiceAccountFetcher([]byte(`{"type":"service_account"`))
	assert.Error(t, err)
}

func TestLoadServiceAccountFetcher_MissingFile(t *testing.T) {
	_, err := LoadServiceAccountFetcher("/nonexistent/key.json")
	assert.Error(t, err)
}
