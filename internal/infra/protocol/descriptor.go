package protocol

import (
	"bytes"
	"fmt"

	"github.com/you-humble/camstage/internal/domain"

	"gopkg.in/ini.v1"
)

const XPDMediaType = "application/x-xpd"

// XPDBuilder renders the INI descriptor the installer client fetches
// before it calls back to the portal.
type XPDBuilder struct {
	serviceName string
}

func NewXPDBuilder(serviceName string) XPDBuilder {
	if serviceName == "" {
		serviceName = "camstage"
	}
	return XPDBuilder{serviceName: serviceName}
}

func (b XPDBuilder) Build(correlationID, callbackURL string) (domain.Document, error) {
	if correlationID == "" {
		return domain.Document{}, fmt.Errorf("build xpd: empty correlation id")
	}
	if callbackURL == "" {
		return domain.Document{}, fmt.Errorf("build xpd: empty callback url")
	}

	f := ini.Empty()

	common, err := f.NewSection("Common")
	if err != nil {
		return domain.Document{}, fmt.Errorf("build xpd: %w", err)
	}
	common.Key("Version").SetValue(protocolVersion)
	common.Key("Service").SetValue(b.serviceName)

	portal, err := f.NewSection("Portal")
	if err != nil {
		return domain.Document{}, fmt.Errorf("build xpd: %w", err)
	}
	portal.Key("URL").SetValue(callbackURL)
	portal.Key("CorrelationID").SetValue(correlationID)
	portal.Key("Method").SetValue("POST")

	var buf bytes.Buffer
	if _, err := f.WriteTo(&buf); err != nil {
		return domain.Document{}, fmt.Errorf("build xpd: write: %w", err)
	}

	return domain.Document{Body: buf.Bytes(), MediaType: XPDMediaType}, nil
}
