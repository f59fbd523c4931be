// Package demo holds the calculator and file manager services served and
// called by the mqrpc command.
package demo

import (
	"time"

	"github.com/srand/mqrpc"
)

// User is a complex value carried through the calculator contract.
type User struct {
	Name      string   `json:"name"`
	Languages []string `json:"languages,omitempty"`
	Rating    int      `json:"rating"`
}

// Calculator is a small arithmetic service.
type Calculator interface {
	Add(a, b int) int
	Divide(dividend, divisor int, remainder *int) (int, error)
	Echo(message string) string
	Notify(event string)
	Programmers() []User
	GoodProgrammers(users []User) []User
}

// FileManager writes files on the serving host.
type FileManager interface {
	// SetFileToPath writes content to path, creating parent directories.
	// Nil content deletes the file. It reports whether the operation succeeded.
	SetFileToPath(path string, content []byte) bool
}

// Service aggregates the demo contracts behind one endpoint.
type Service interface {
	Calculator
	FileManager
	Version() string
}

var (
	CalculatorContract = mqrpc.MustDescribe[Calculator](
		mqrpc.WithParamNames("Add", "a", "b"),
		mqrpc.WithAttributes("Add", mqrpc.TimeToLive(2*time.Second)),
		mqrpc.WithParamNames("Divide", "dividend", "divisor", "remainder"),
		mqrpc.WithOut("Divide", "remainder"),
		mqrpc.WithParamNames("Echo", "message"),
		mqrpc.WithParamNames("Notify", "event"),
		mqrpc.WithAttributes("Notify", mqrpc.Async{}),
		mqrpc.WithParamNames("GoodProgrammers", "users"),
	)

	FileManagerContract = mqrpc.MustDescribe[FileManager](
		mqrpc.WithParamNames("SetFileToPath", "path", "content"),
	)

	ServiceContract = mqrpc.MustDescribe[Service](
		mqrpc.WithEmbedded(CalculatorContract, FileManagerContract),
	)
)
