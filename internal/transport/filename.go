// Package transport moves order documents through the instrument's file
// exchange: requests are dropped into the inbox, responses are collected
// from the outbox, and every document ends up in the archive.
package transport

import (
	"fmt"
	"regexp"

	"github.com/hqmon/argusd/internal/model"
)

// Exchange filenames render the order identifier with dash separators plus
// a direction marker: PREFIX-DDMMYY-HHMMSSmmm-O.xml for outgoing requests,
// PREFIX-DDMMYY-HHMMSSmmm-R.xml for instrument responses.
var exchangeFileRe = regexp.MustCompile(`^(OR|GSS|GSP|IFL|ITL)-(\d{6})-(\d{9})-([OR])\.xml$`)

// RequestFilename renders the inbox filename for an order.
func RequestFilename(orderID string) (string, error) {
	prefix, date, clock, err := model.SplitOrderID(orderID)
	if err != nil {
		return "", fmt.Errorf("request filename: %w", err)
	}
	return fmt.Sprintf("%s-%s-%s-O.xml", prefix, date, clock), nil
}

// ResponseFilename renders the outbox filename the instrument uses to
// answer an order.
func ResponseFilename(orderID string) (string, error) {
	prefix, date, clock, err := model.SplitOrderID(orderID)
	if err != nil {
		return "", fmt.Errorf("response filename: %w", err)
	}
	return fmt.Sprintf("%s-%s-%s-R.xml", prefix, date, clock), nil
}

// ParseExchangeFilename extracts the order identifier and direction from an
// exchange filename. ok is false for files outside the grammar, which the
// watcher ignores.
func ParseExchangeFilename(name string) (orderID string, response bool, ok bool) {
	m := exchangeFileRe.FindStringSubmatch(name)
	if m == nil {
		return "", false, false
	}
	return m[1] + m[2] + m[3], m[4] == "R", true
}

// IsResponseFile reports whether name is an instrument response document.
func IsResponseFile(name string) bool {
	_, response, ok := ParseExchangeFilename(name)
	return ok && response
}
