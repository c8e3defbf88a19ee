package classifier

import (
	"context"

	"github.com/stretchr/testify/mock"
)

// MockClassifier is a testify mock of Classifier.
type MockClassifier struct {
	mock.Mock
}

// ClassifyPage is the mock implementation of the ClassifyPage method.
func (m *MockClassifier) ClassifyPage(ctx context.Context, req PageRequest) (Action, error) {
	args := m.Called(ctx, req)
	return args.Get(0).(Action), args.Error(1)
}

// SelectLinks is the mock implementation of the SelectLinks method.
func (m *MockClassifier) SelectLinks(ctx context.Context, sourceURL string, urls []string) ([]string, error) {
	args := m.Called(ctx, sourceURL, urls)
	var selected []string
	if v := args.Get(0); v != nil {
		selected = v.([]string)
	}
	return selected, args.Error(1)
}
