package a2a

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/viper"
)

// TransportProtocol labels a wire surface an agent can be reached on.
type TransportProtocol string

const (
	TransportJSONRPC  TransportProtocol = "JSONRPC"
	TransportGRPC     TransportProtocol = "GRPC"
	TransportHTTPJSON TransportProtocol = "HTTP+JSON"
)

// Well-known paths where agents publish their card.
const (
	AgentCardPath           = "/.well-known/agent-card.json"
	DeprecatedAgentCardPath = "/.well-known/agent.json"
)

// Bool returns a pointer to v, for the tri-state capability fields.
func Bool(v bool) *bool { return &v }

/*
AgentCapabilities describes the optional protocol features an agent
supports.  The fields are pointers so that an explicit false survives
serialization and canonicalization, which matters for signed cards.
*/
type AgentCapabilities struct {
	Streaming              *bool            `json:"streaming,omitempty"`
	PushNotifications      *bool            `json:"pushNotifications,omitempty"`
	StateTransitionHistory *bool            `json:"stateTransitionHistory,omitempty"`
	Extensions             []AgentExtension `json:"extensions,omitempty"`
}

// AgentExtension declares a protocol extension the agent understands.
type AgentExtension struct {
	URI         string         `json:"uri"`
	Description string         `json:"description,omitempty"`
	Required    bool           `json:"required,omitempty"`
	Params      map[string]any `json:"params,omitempty"`
}

// AgentProvider represents the organization behind an agent.
type AgentProvider struct {
	Organization string `json:"organization"`
	URL          string `json:"url,omitempty"`
}

// AgentInterface pairs a transport protocol with the URL serving it.
type AgentInterface struct {
	URL       string            `json:"url"`
	Transport TransportProtocol `json:"transport"`
}

// AgentSkill defines a specific capability offered by an agent.
type AgentSkill struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Description string   `json:"description,omitempty"`
	Tags        []string `json:"tags,omitempty"`
	Examples    []string `json:"examples,omitempty"`
	InputModes  []string `json:"inputModes,omitempty"`
	OutputModes []string `json:"outputModes,omitempty"`
}

/*
SecurityScheme is a discriminated union over the OpenAPI security scheme
variants, discriminated by Type.  As with Part we keep every optional
field in one struct instead of hand-rolling union marshalling.
*/
type SecurityScheme struct {
	Type        SecuritySchemeType `json:"type"`
	Description string             `json:"description,omitempty"`

	// apiKey
	Name string `json:"name,omitempty"`
	In   string `json:"in,omitempty"`

	// http
	Scheme       string `json:"scheme,omitempty"`
	BearerFormat string `json:"bearerFormat,omitempty"`

	// oauth2
	Flows *OAuth2Flows `json:"flows,omitempty"`

	// openIdConnect
	OpenIDConnectURL string `json:"openIdConnectUrl,omitempty"`
}

type SecuritySchemeType string

const (
	SecuritySchemeAPIKey        SecuritySchemeType = "apiKey"
	SecuritySchemeHTTP          SecuritySchemeType = "http"
	SecuritySchemeOAuth2        SecuritySchemeType = "oauth2"
	SecuritySchemeOpenIDConnect SecuritySchemeType = "openIdConnect"
	SecuritySchemeMutualTLS     SecuritySchemeType = "mutualTLS"
)

// OAuth2Flows lists the flows an oauth2 scheme supports.
type OAuth2Flows struct {
	AuthorizationCode *AuthorizationCodeFlow `json:"authorizationCode,omitempty"`
	ClientCredentials *ClientCredentialsFlow `json:"clientCredentials,omitempty"`
	Implicit          *ImplicitFlow          `json:"implicit,omitempty"`
	Password          *PasswordFlow          `json:"password,omitempty"`
}

type AuthorizationCodeFlow struct {
	AuthorizationURL string            `json:"authorizationUrl"`
	TokenURL         string            `json:"tokenUrl"`
	RefreshURL       string            `json:"refreshUrl,omitempty"`
	Scopes           map[string]string `json:"scopes"`
}

type ClientCredentialsFlow struct {
	TokenURL   string            `json:"tokenUrl"`
	RefreshURL string            `json:"refreshUrl,omitempty"`
	Scopes     map[string]string `json:"scopes"`
}

type ImplicitFlow struct {
	AuthorizationURL string            `json:"authorizationUrl"`
	RefreshURL       string            `json:"refreshUrl,omitempty"`
	Scopes           map[string]string `json:"scopes"`
}

type PasswordFlow struct {
	TokenURL   string            `json:"tokenUrl"`
	RefreshURL string            `json:"refreshUrl,omitempty"`
	Scopes     map[string]string `json:"scopes"`
}

/*
AgentCardSignature is a detached JWS over the canonical form of the card:
the base64url protected header and signature segments of a compact JWS
whose payload (the canonical card) is never transmitted.
*/
type AgentCardSignature struct {
	Protected string         `json:"protected"`
	Signature string         `json:"signature"`
	Header    map[string]any `json:"header,omitempty"`
}

// AgentCard is the capability descriptor an agent publishes.
type AgentCard struct {
	ProtocolVersion string `json:"protocolVersion"`
	Name            string `json:"name"`
	Description     string `json:"description"`
	Version         string `json:"version"`
	IconURL         string `json:"iconUrl,omitempty"`

	// URL serves the preferred transport; additional interfaces list every
	// other (transport, url) pair the agent answers on.
	URL                  string            `json:"url"`
	PreferredTransport   TransportProtocol `json:"preferredTransport,omitempty"`
	AdditionalInterfaces []AgentInterface  `json:"additionalInterfaces,omitempty"`

	Provider         *AgentProvider    `json:"provider,omitempty"`
	DocumentationURL string            `json:"documentationUrl,omitempty"`
	Capabilities     AgentCapabilities `json:"capabilities"`

	SecuritySchemes map[string]SecurityScheme `json:"securitySchemes,omitempty"`
	Security        []map[string][]string     `json:"security,omitempty"`

	DefaultInputModes  []string     `json:"defaultInputModes"`
	DefaultOutputModes []string     `json:"defaultOutputModes"`
	Skills             []AgentSkill `json:"skills"`

	SupportsAuthenticatedExtendedCard bool                 `json:"supportsAuthenticatedExtendedCard,omitempty"`
	Signatures                        []AgentCardSignature `json:"signatures,omitempty"`
}

// Streaming resolves the tri-state streaming capability, defaulting to
// false when unset.
func (card *AgentCard) Streaming() bool {
	return card.Capabilities.Streaming != nil && *card.Capabilities.Streaming
}

// PushNotificationsEnabled resolves the tri-state push capability,
// defaulting to false when unset.
func (card *AgentCard) PushNotificationsEnabled() bool {
	return card.Capabilities.PushNotifications != nil && *card.Capabilities.PushNotifications
}

/*
Interfaces returns the full candidate set of (transport, url) pairs in
declaration order, the preferred transport first.
*/
func (card *AgentCard) Interfaces() []AgentInterface {
	interfaces := make([]AgentInterface, 0, len(card.AdditionalInterfaces)+1)

	preferred := card.PreferredTransport
	if preferred == "" {
		preferred = TransportJSONRPC
	}

	interfaces = append(interfaces, AgentInterface{URL: card.URL, Transport: preferred})
	interfaces = append(interfaces, card.AdditionalInterfaces...)

	return interfaces
}

func NewAgentCardFromConfig(key string) *AgentCard {
	v := viper.GetViper()
	skillArray := v.GetStringSlice(fmt.Sprintf("agent.%s.skills", key))

	skills := make([]AgentSkill, len(skillArray))

	for i, skill := range skillArray {
		skills[i] = NewSkillFromConfig(skill)
	}

	return &AgentCard{
		ProtocolVersion: v.GetString("protocolVersion"),
		Name:            v.GetString(fmt.Sprintf("agent.%s.name", key)),
		Description:     v.GetString(fmt.Sprintf("agent.%s.description", key)),
		Version:         v.GetString(fmt.Sprintf("agent.%s.version", key)),
		URL:             v.GetString(fmt.Sprintf("agent.%s.url", key)),
		Provider: &AgentProvider{
			Organization: v.GetString(fmt.Sprintf("agent.%s.provider.organization", key)),
			URL:          v.GetString(fmt.Sprintf("agent.%s.provider.url", key)),
		},
		DocumentationURL: v.GetString(fmt.Sprintf("agent.%s.documentationUrl", key)),
		Capabilities: AgentCapabilities{
			Streaming:              Bool(v.GetBool(fmt.Sprintf("agent.%s.capabilities.streaming", key))),
			PushNotifications:      Bool(v.GetBool(fmt.Sprintf("agent.%s.capabilities.pushNotifications", key))),
			StateTransitionHistory: Bool(v.GetBool(fmt.Sprintf("agent.%s.capabilities.stateTransitionHistory", key))),
		},
		DefaultInputModes:  v.GetStringSlice(fmt.Sprintf("agent.%s.defaultInputModes", key)),
		DefaultOutputModes: v.GetStringSlice(fmt.Sprintf("agent.%s.defaultOutputModes", key)),
		Skills:             skills,
	}
}

func NewSkillFromConfig(skill string) AgentSkill {
	v := viper.GetViper()

	return AgentSkill{
		ID:          v.GetString(fmt.Sprintf("skills.%s.id", skill)),
		Name:        v.GetString(fmt.Sprintf("skills.%s.name", skill)),
		Description: v.GetString(fmt.Sprintf("skills.%s.description", skill)),
		Tags:        v.GetStringSlice(fmt.Sprintf("skills.%s.tags", skill)),
		Examples:    v.GetStringSlice(fmt.Sprintf("skills.%s.examples", skill)),
		InputModes:  v.GetStringSlice(fmt.Sprintf("skills.%s.input_modes", skill)),
		OutputModes: v.GetStringSlice(fmt.Sprintf("skills.%s.output_modes", skill)),
	}
}

func (card *AgentCard) String() string {
	var sb strings.Builder

	// Styles
	headerStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("212")).
		Bold(true)

	labelStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("39")).
		Bold(true)

	valueStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("252"))

	sectionStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("99")).
		Bold(true)

	// Indentation and box-drawing chars
	indent := "   "
	bullet := "│ "

	// Agent Card Header
	sb.WriteString(headerStyle.Render("Agent Card") + "\n")
	sb.WriteString(bullet + labelStyle.Render("Name: ") + valueStyle.Render(card.Name) + "\n")
	if card.Description != "" {
		sb.WriteString(bullet + labelStyle.Render("Description: ") + valueStyle.Render(card.Description) + "\n")
	}
	sb.WriteString(bullet + labelStyle.Render("URL: ") + valueStyle.Render(card.URL) + "\n")
	sb.WriteString(bullet + labelStyle.Render("Version: ") + valueStyle.Render(card.Version) + "\n")
	if card.ProtocolVersion != "" {
		sb.WriteString(bullet + labelStyle.Render("Protocol: ") + valueStyle.Render(card.ProtocolVersion) + "\n")
	}

	// Provider Section
	if card.Provider != nil {
		sb.WriteString("\n" + sectionStyle.Render("Provider") + "\n")
		sb.WriteString(bullet + labelStyle.Render("Organization: ") + valueStyle.Render(card.Provider.Organization) + "\n")
		if card.Provider.URL != "" {
			sb.WriteString(bullet + labelStyle.Render("URL: ") + valueStyle.Render(card.Provider.URL) + "\n")
		}
	}

	// Capabilities Section
	sb.WriteString("\n" + sectionStyle.Render("Capabilities") + "\n")
	sb.WriteString(bullet + labelStyle.Render("Streaming: ") + valueStyle.Render(fmt.Sprintf("%v", card.Streaming())) + "\n")
	sb.WriteString(bullet + labelStyle.Render("Push Notifications: ") + valueStyle.Render(fmt.Sprintf("%v", card.PushNotificationsEnabled())) + "\n")

	// Interfaces Section
	sb.WriteString("\n" + sectionStyle.Render("Interfaces") + "\n")
	for _, iface := range card.Interfaces() {
		sb.WriteString(bullet + labelStyle.Render(string(iface.Transport)+": ") + valueStyle.Render(iface.URL) + "\n")
	}

	// Skills Section
	if len(card.Skills) > 0 {
		sb.WriteString("\n" + sectionStyle.Render("Skills") + "\n")
		for i, skill := range card.Skills {
			sb.WriteString(bullet + labelStyle.Render(fmt.Sprintf("Skill %d", i+1)) + "\n")
			sb.WriteString(bullet + indent + labelStyle.Render("ID: ") + valueStyle.Render(skill.ID) + "\n")
			sb.WriteString(bullet + indent + labelStyle.Render("Name: ") + valueStyle.Render(skill.Name) + "\n")
			if skill.Description != "" {
				sb.WriteString(bullet + indent + labelStyle.Render("Description: ") + valueStyle.Render(skill.Description) + "\n")
			}
			if len(skill.Tags) > 0 {
				sb.WriteString(bullet + indent + labelStyle.Render("Tags: ") + valueStyle.Render(strings.Join(skill.Tags, ", ")) + "\n")
			}
		}
	}

	return sb.String()
}
