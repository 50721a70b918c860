package mailparse

import (
	"io"
	"strings"

	"github.com/emersion/go-message"
	"github.com/k3a/html2text"
	"go.uber.org/zap"
)

// maxNestingDepth bounds how deep nested multiparts are walked
const maxNestingDepth = 8

// ExtractBody returns the best textual body of a message: the first non-attachment text/plain part,
// otherwise the first text/html part. The result is trimmed and empty when nothing is decodable.
func (p *Parser) ExtractBody(entity *message.Entity) string {
	return p.extractBody(entity, false)
}

func (p *Parser) extractBody(entity *message.Entity, undecoded bool) string {
	if entity.MultipartReader() == nil {
		return strings.TrimSpace(p.readPart(entity, undecoded))
	}

	var html string
	var plain string
	p.walk(entity, 0, func(part *message.Entity, partUndecoded bool) bool {
		if isAttachment(part) {
			return false
		}
		switch mediaType(part) {
		case "text/plain":
			if text := p.readPart(part, partUndecoded); text != "" {
				plain = text
				return true
			}
		case "text/html":
			if html == "" {
				html = p.readPart(part, partUndecoded)
			}
		}
		return false
	})

	if plain != "" {
		return strings.TrimSpace(plain)
	}
	if html != "" && p.htmlToText {
		return strings.TrimSpace(html2text.HTML2Text(html))
	}
	return strings.TrimSpace(html)
}

// walk visits the leaf parts of a multipart entity in document order until visit returns true
func (p *Parser) walk(entity *message.Entity, depth int, visit func(*message.Entity, bool) bool) bool {
	mr := entity.MultipartReader()
	if mr == nil {
		return false
	}

	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			return false
		}
		if err != nil && !isRecoverable(err) {
			p.logger.Debug("Stopped reading multipart body", zap.Error(err))
			return false
		}
		if part == nil {
			return false
		}

		if part.MultipartReader() != nil {
			if depth+1 >= maxNestingDepth {
				continue
			}
			if p.walk(part, depth+1, visit) {
				return true
			}
			continue
		}

		if visit(part, err != nil) {
			return true
		}
	}
}

// readPart reads a leaf part as UTF-8 text.
// go-message already converted bodies with a known charset; undecoded ones are converted here.
func (p *Parser) readPart(part *message.Entity, undecoded bool) string {
	data, err := io.ReadAll(part.Body)
	if err != nil {
		p.logger.Debug("Part body read stopped early", zap.Error(err))
	}
	if len(data) == 0 {
		return ""
	}
	if undecoded {
		_, params, _ := part.Header.ContentType()
		return p.text.Decode(params["charset"], data)
	}
	return p.text.SanitizeUTF8(string(data))
}

func mediaType(part *message.Entity) string {
	t, _, err := part.Header.ContentType()
	if err != nil || t == "" {
		if part.Header.Get("Content-Type") == "" {
			// RFC 2045 default
			return "text/plain"
		}
		return ""
	}
	return strings.ToLower(t)
}

func isAttachment(part *message.Entity) bool {
	return strings.Contains(strings.ToLower(part.Header.Get("Content-Disposition")), "attachment")
}
