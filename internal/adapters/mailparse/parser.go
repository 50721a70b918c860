package mailparse

import (
	"bytes"
	"fmt"
	"mime"
	"net/mail"

	"github.com/emersion/go-message"
	"go.uber.org/zap"

	"github.com/mikey/agenda-relay/internal/core"
	"github.com/mikey/agenda-relay/internal/utils"
)

// Parser turns raw RFC 5322 messages into core.ParsedMessage values
type Parser struct {
	text       *utils.TextProcessor
	words      *mime.WordDecoder
	addresses  *mail.AddressParser
	htmlToText bool
	logger     *zap.Logger
}

// NewParser creates a new message parser.
// When htmlToText is set, an HTML-only body is converted to plain text.
func NewParser(text *utils.TextProcessor, htmlToText bool, logger *zap.Logger) *Parser {
	if logger == nil {
		logger = zap.NewNop()
	}
	if text == nil {
		text = utils.NewTextProcessor(logger)
	}
	words := &mime.WordDecoder{CharsetReader: text.CharsetReader}
	return &Parser{
		text:       text,
		words:      words,
		addresses:  &mail.AddressParser{WordDecoder: words},
		htmlToText: htmlToText,
		logger:     logger,
	}
}

// Parse extracts sender, subject, recipients and body from a raw message
func (p *Parser) Parse(raw []byte) (*core.ParsedMessage, error) {
	if len(bytes.TrimSpace(raw)) == 0 {
		return nil, fmt.Errorf("%w: empty message", core.ErrParse)
	}

	entity, err := message.Read(bytes.NewReader(raw))
	if err != nil && !isRecoverable(err) {
		return nil, fmt.Errorf("%w: %w", core.ErrParse, err)
	}
	undecoded := err != nil

	from := entity.Header.Get("From")
	parsed := &core.ParsedMessage{
		SenderAddress: p.senderAddress(from),
		SenderDisplay: p.DecodeHeader(from),
		Subject:       p.DecodeHeader(entity.Header.Get("Subject")),
		Cc:            p.addressList(entity.Header.Get("Cc")),
		To:            p.addressList(entity.Header.Get("To")),
	}
	parsed.Body = p.extractBody(entity, undecoded)

	p.logger.Debug("Parsed message",
		zap.String("sender", parsed.SenderAddress),
		zap.String("subject", parsed.Subject),
		zap.Int("body_size", len(parsed.Body)))

	return parsed, nil
}

// isRecoverable reports errors after which go-message still hands back a usable entity
// whose body simply was not converted.
func isRecoverable(err error) bool {
	return message.IsUnknownCharset(err) || message.IsUnknownEncoding(err)
}
