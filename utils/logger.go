package utils

import (
	"io"

	"github.com/sirupsen/logrus"
)

// ComponentLogger tags logger with the component name, a nil logger discards everything.
func ComponentLogger(logger *logrus.Entry, component string) *logrus.Entry {
	if logger == nil {
		l := logrus.New()
		l.SetOutput(io.Discard)
		logger = logrus.NewEntry(l)
	}
	return logger.WithField("component", component)
}
