package archive

import "errors"

// NewSink selects the archive backend: a command sink when command is set,
// otherwise an object-store sink. Exactly one of the two must be configured.
func NewSink(command string, env []string, obj *ObjectConfig) (Sink, error) {
	switch {
	case command != "" && obj != nil:
		return nil, errors.New("archive: command and s3 are mutually exclusive")
	case command != "":
		return NewCommandSink(command, env), nil
	case obj != nil:
		return NewObjectSink(*obj)
	default:
		return nil, errors.New("archive: no sink configured")
	}
}
