package jwtclaims

import "github.com/sirupsen/logrus"

var _logger = logrus.StandardLogger().WithField("module", "jwtclaims")

// Log returns the logger used by the validator and provider. Decoding and
// encoding never log.
func Log() *logrus.Entry {
	return _logger
}
