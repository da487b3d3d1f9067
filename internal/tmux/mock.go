package tmux

import (
	"github.com/stretchr/testify/mock"
)

// MockClient is a testify mock of Client.
//
// Example usage:
//
//	mockClient := new(MockClient)
//	mockClient.On("HasSession").Return(true, nil)
//	mockClient.On("SetStatusOption", CountOption, "3").Return(nil)
type MockClient struct {
	mock.Mock
}

// HasSession returns a mocked server state.
func (m *MockClient) HasSession() (bool, error) {
	args := m.Called()
	return args.Bool(0), args.Error(1)
}

// SetStatusOption records the option and returns a mocked error.
func (m *MockClient) SetStatusOption(name, value string) error {
	args := m.Called(name, value)
	return args.Error(0)
}

// SetEnvironment records the variable and returns a mocked error.
func (m *MockClient) SetEnvironment(name, value string) error {
	args := m.Called(name, value)
	return args.Error(0)
}

// RefreshStatus returns a mocked error.
func (m *MockClient) RefreshStatus() error {
	args := m.Called()
	return args.Error(0)
}

// Run returns mocked stdout, stderr and error.
func (m *MockClient) Run(args ...string) (string, string, error) {
	callArgs := make([]interface{}, len(args))
	for i, a := range args {
		callArgs[i] = a
	}
	ret := m.Called(callArgs...)
	return ret.String(0), ret.String(1), ret.Error(2)
}

var _ Client = (*MockClient)(nil)
