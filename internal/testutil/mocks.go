package testutil

import (
	"github.com/stretchr/testify/mock"

	"github.com/srand/mqrpc/internal/demo"
)

// CalculatorMock is a mock demo.Calculator.
type CalculatorMock struct {
	mock.Mock
}

var _ demo.Calculator = (*CalculatorMock)(nil)

func (m *CalculatorMock) Add(a, b int) int {
	args := m.Called(a, b)
	return args.Int(0)
}

func (m *CalculatorMock) Divide(dividend, divisor int, remainder *int) (int, error) {
	args := m.Called(dividend, divisor, remainder)
	return args.Int(0), args.Error(1)
}

func (m *CalculatorMock) Echo(message string) string {
	args := m.Called(message)
	return args.String(0)
}

func (m *CalculatorMock) Notify(event string) {
	m.Called(event)
}

func (m *CalculatorMock) Programmers() []demo.User {
	args := m.Called()
	users := args.Get(0)
	if users == nil {
		return nil
	}
	return users.([]demo.User)
}

func (m *CalculatorMock) GoodProgrammers(users []demo.User) []demo.User {
	args := m.Called(users)
	good := args.Get(0)
	if good == nil {
		return nil
	}
	return good.([]demo.User)
}
