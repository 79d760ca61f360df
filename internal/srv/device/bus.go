package device

// Bus is the exclusive link to the panel controller. Command sends a command
// byte followed by its parameters, Data streams pixel memory.
type Bus interface {
	Reset() error
	Command(code byte, params ...byte) error
	Data(p []byte) error
	Close() error
}
