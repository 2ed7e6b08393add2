package main

import (
	"io"

	"github.com/sirupsen/logrus"
)

func newDiscardLogger() *logrus.Logger {
	l := logrus.New()
	l.Out = io.Discard
	return l
}
