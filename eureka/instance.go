package eureka

import (
	"encoding/json"
	"encoding/xml"
	"fmt"
	"sort"
	"strconv"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

// Status 实例状态（注册中心固定的 token 集合）
type Status string

const (
	StatusUp           Status = "UP"
	StatusDown         Status = "DOWN"
	StatusStarting     Status = "STARTING"
	StatusOutOfService Status = "OUT_OF_SERVICE"
	StatusUnknown      Status = "UNKNOWN"
)

// ParseStatus maps a wire token to a Status. The empty token is UNKNOWN.
func ParseStatus(s string) (Status, error) {
	switch Status(strings.TrimSpace(s)) {
	case StatusUp:
		return StatusUp, nil
	case StatusDown:
		return StatusDown, nil
	case StatusStarting:
		return StatusStarting, nil
	case StatusOutOfService:
		return StatusOutOfService, nil
	case StatusUnknown, "":
		return StatusUnknown, nil
	}
	return "", fmt.Errorf("invalid instance status %q", s)
}

// MarshalText 同时服务于 XML chardata 与 JSON 字符串
func (s Status) MarshalText() ([]byte, error) {
	if s == "" {
		return []byte(StatusUnknown), nil
	}
	parsed, err := ParseStatus(string(s))
	if err != nil {
		return nil, err
	}
	return []byte(parsed), nil
}

// UnmarshalText rejects tokens outside the fixed set.
func (s *Status) UnmarshalText(b []byte) error {
	parsed, err := ParseStatus(string(b))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// Port is a numeric port plus an enabled flag. A disabled port is absent.
//
//	XML:  <port enabled="true">8080</port>
//	JSON: {"$": 8080, "@enabled": "true"}
type Port struct {
	Value   int  `xml:",chardata"`
	Enabled bool `xml:"enabled,attr"`
}

// NewPort returns an enabled port.
func NewPort(value int) Port {
	return Port{Value: value, Enabled: true}
}

// Get returns the port value and false when the port is disabled.
func (p Port) Get() (int, bool) {
	if !p.Enabled {
		return 0, false
	}
	return p.Value, true
}

// MarshalJSON writes the "$"/"@enabled" shape.
func (p Port) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Value   int    `json:"$"`
		Enabled string `json:"@enabled"`
	}{p.Value, strconv.FormatBool(p.Enabled)})
}

// UnmarshalJSON accepts the value as number or string and the flag as string or bool.
func (p *Port) UnmarshalJSON(data []byte) error {
	var raw struct {
		Value   json.RawMessage `json:"$"`
		Enabled json.RawMessage `json:"@enabled"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("port: %w", err)
	}

	value, err := scalarString(raw.Value)
	if err != nil {
		return fmt.Errorf("port value: %w", err)
	}
	if value != "" {
		if p.Value, err = strconv.Atoi(value); err != nil {
			return fmt.Errorf("port value: %w", err)
		}
	}

	enabled, err := scalarString(raw.Enabled)
	if err != nil {
		return fmt.Errorf("port enabled: %w", err)
	}
	if enabled == "" {
		p.Enabled = false
		return nil
	}
	if p.Enabled, err = strconv.ParseBool(enabled); err != nil {
		return fmt.Errorf("port enabled: %w", err)
	}
	return nil
}

// scalarString 把 JSON 标量（字符串/数字/布尔）统一转成字符串
func scalarString(raw json.RawMessage) (string, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return "", nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s, nil
	}
	var v interface{}
	if err := json.Unmarshal(raw, &v); err != nil {
		return "", err
	}
	switch v.(type) {
	case float64, bool:
		return string(raw), nil
	}
	return "", fmt.Errorf("expected scalar, got %s", string(raw))
}

// DataCenterName 数据中心类型
type DataCenterName string

const (
	DataCenterMyOwn  DataCenterName = "MyOwn"
	DataCenterAmazon DataCenterName = "Amazon"
)

const (
	defaultDataCenterClass = "com.netflix.appinfo.InstanceInfo$DefaultDataCenterInfo"
	amazonDataCenterClass  = "com.netflix.appinfo.AmazonInfo"
)

// DataCenterInfo is MyOwn or Amazon; only Amazon carries metadata.
type DataCenterInfo struct {
	Class    string          `xml:"class,attr" json:"@class"`
	Name     DataCenterName  `xml:"name" json:"name"`
	Metadata *AmazonMetadata `xml:"metadata,omitempty" json:"metadata,omitempty"`
}

// MyOwnDataCenter returns the default data center info.
func MyOwnDataCenter() DataCenterInfo {
	return DataCenterInfo{Class: defaultDataCenterClass, Name: DataCenterMyOwn}
}

// AmazonDataCenter returns an Amazon data center info carrying md.
func AmazonDataCenter(md AmazonMetadata) DataCenterInfo {
	return DataCenterInfo{Class: amazonDataCenterClass, Name: DataCenterAmazon, Metadata: &md}
}

// AmazonMetadata EC2 实例元数据
type AmazonMetadata struct {
	AmiLaunchIndex   string `xml:"ami-launch-index" json:"ami-launch-index"`
	LocalHostname    string `xml:"local-hostname" json:"local-hostname"`
	AvailabilityZone string `xml:"availability-zone" json:"availability-zone"`
	InstanceID       string `xml:"instance-id" json:"instance-id"`
	PublicIPv4       string `xml:"public-ipv4" json:"public-ipv4"`
	PublicHostname   string `xml:"public-hostname" json:"public-hostname"`
	AmiManifestPath  string `xml:"ami-manifest-path" json:"ami-manifest-path"`
	LocalIPv4        string `xml:"local-ipv4" json:"local-ipv4"`
	Hostname         string `xml:"hostname" json:"hostname"`
	AmiID            string `xml:"ami-id" json:"ami-id"`
	InstanceType     string `xml:"instance-type" json:"instance-type"`
}

// LeaseInfo carries the eviction duration; timestamps are filled by the server.
type LeaseInfo struct {
	RenewalIntervalInSecs int   `xml:"renewalIntervalInSecs,omitempty" json:"renewalIntervalInSecs,omitempty"`
	DurationInSecs        int   `xml:"durationInSecs,omitempty" json:"durationInSecs,omitempty"`
	RegistrationTimestamp int64 `xml:"registrationTimestamp,omitempty" json:"registrationTimestamp,omitempty"`
	LastRenewalTimestamp  int64 `xml:"lastRenewalTimestamp,omitempty" json:"lastRenewalTimestamp,omitempty"`
	EvictionTimestamp     int64 `xml:"evictionTimestamp,omitempty" json:"evictionTimestamp,omitempty"`
	ServiceUpTimestamp    int64 `xml:"serviceUpTimestamp,omitempty" json:"serviceUpTimestamp,omitempty"`
}

// Metadata is free-form string metadata. On the XML wire every key is a child
// element; the JSON "@class" marker sent by the server is dropped.
type Metadata map[string]string

// MarshalXML writes keys in sorted order.
func (m Metadata) MarshalXML(e *xml.Encoder, start xml.StartElement) error {
	if err := e.EncodeToken(start); err != nil {
		return err
	}
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if err := e.EncodeElement(m[k], xml.StartElement{Name: xml.Name{Local: k}}); err != nil {
			return err
		}
	}
	return e.EncodeToken(start.End())
}

// UnmarshalXML reads every child element as key/text; attributes are ignored.
func (m *Metadata) UnmarshalXML(d *xml.Decoder, start xml.StartElement) error {
	out := Metadata{}
	for {
		tok, err := d.Token()
		if err != nil {
			return err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			var value string
			if err := d.DecodeElement(&value, &t); err != nil {
				return err
			}
			out[t.Name.Local] = value
		case xml.EndElement:
			if len(out) > 0 {
				*m = out
			}
			return nil
		}
	}
}

// UnmarshalJSON drops "@class" and stringifies scalar values.
func (m *Metadata) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	out := Metadata{}
	for k, v := range raw {
		if k == "@class" {
			continue
		}
		s, err := scalarString(v)
		if err != nil {
			return fmt.Errorf("metadata %q: %w", k, err)
		}
		out[k] = s
	}
	if len(out) > 0 {
		*m = out
	}
	return nil
}

// Instance 注册中心中的一个服务实例
type Instance struct {
	XMLName          xml.Name       `xml:"instance" json:"-"`
	InstanceID       string         `xml:"instanceId,omitempty" json:"instanceId,omitempty"`
	HostName         string         `xml:"hostName" json:"hostName"`
	App              string         `xml:"app" json:"app"`
	IPAddr           string         `xml:"ipAddr" json:"ipAddr"`
	VIPAddress       string         `xml:"vipAddress,omitempty" json:"vipAddress,omitempty"`
	SecureVIPAddress string         `xml:"secureVipAddress,omitempty" json:"secureVipAddress,omitempty"`
	Status           Status         `xml:"status" json:"status"`
	Port             Port           `xml:"port" json:"port"`
	SecurePort       Port           `xml:"securePort" json:"securePort"`
	HomePageURL      string         `xml:"homePageUrl,omitempty" json:"homePageUrl,omitempty"`
	StatusPageURL    string         `xml:"statusPageUrl,omitempty" json:"statusPageUrl,omitempty"`
	HealthCheckURL   string         `xml:"healthCheckUrl,omitempty" json:"healthCheckUrl,omitempty"`
	DataCenterInfo   DataCenterInfo `xml:"dataCenterInfo" json:"dataCenterInfo"`
	LeaseInfo        *LeaseInfo     `xml:"leaseInfo,omitempty" json:"leaseInfo,omitempty"`
	Metadata         Metadata       `xml:"metadata,omitempty" json:"metadata,omitempty"`
}

// ID returns the identity used for registry operations: InstanceID when set,
// otherwise HostName. Two instances on one host without an InstanceID collide.
func (i *Instance) ID() string {
	if i.InstanceID != "" {
		return i.InstanceID
	}
	return i.HostName
}

// Clone returns a deep copy.
func (i *Instance) Clone() Instance {
	c := *i
	if i.LeaseInfo != nil {
		lease := *i.LeaseInfo
		c.LeaseInfo = &lease
	}
	if i.DataCenterInfo.Metadata != nil {
		md := *i.DataCenterInfo.Metadata
		c.DataCenterInfo.Metadata = &md
	}
	if i.Metadata != nil {
		c.Metadata = make(Metadata, len(i.Metadata))
		for k, v := range i.Metadata {
			c.Metadata[k] = v
		}
	}
	return c
}

var _ validation.Validatable = (*Instance)(nil)

// Validate 校验注册所需字段
func (i *Instance) Validate() error {
	return validation.ValidateStruct(i,
		validation.Field(&i.App, validation.Required),
		validation.Field(&i.HostName, validation.Required),
		validation.Field(&i.IPAddr, validation.Required),
		validation.Field(&i.Port, validation.By(validPort)),
		validation.Field(&i.SecurePort, validation.By(validPort)),
		validation.Field(&i.DataCenterInfo, validation.By(validDataCenter)),
	)
}

func validPort(value interface{}) error {
	p, _ := value.(Port)
	if p.Enabled && (p.Value < 1 || p.Value > 65535) {
		return fmt.Errorf("must be between 1 and 65535 when enabled")
	}
	return nil
}

func validDataCenter(value interface{}) error {
	dc, _ := value.(DataCenterInfo)
	switch dc.Name {
	case DataCenterMyOwn:
		return nil
	case DataCenterAmazon:
		if dc.Metadata == nil {
			return fmt.Errorf("amazon data center requires metadata")
		}
		return nil
	}
	return fmt.Errorf("unknown data center %q", dc.Name)
}

// Application 一个应用及其实例（保持服务端顺序）
type Application struct {
	XMLName   xml.Name   `xml:"application" json:"-"`
	Name      string     `xml:"name" json:"name"`
	Instances []Instance `xml:"instance" json:"instance"`
}

// UnmarshalJSON accepts "instance" as an array or a single object.
func (a *Application) UnmarshalJSON(data []byte) error {
	var raw struct {
		Name     string          `json:"name"`
		Instance json.RawMessage `json:"instance"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	instances, err := oneOrMany[Instance](raw.Instance)
	if err != nil {
		return fmt.Errorf("application %q: %w", raw.Name, err)
	}
	a.Name = raw.Name
	a.Instances = instances
	return nil
}

// Applications 注册表全量文档
type Applications struct {
	XMLName       xml.Name      `xml:"applications" json:"-"`
	VersionsDelta string        `xml:"versions__delta" json:"versions__delta"`
	AppsHashcode  string        `xml:"apps__hashcode" json:"apps__hashcode"`
	Applications  []Application `xml:"application" json:"application"`
}

// UnmarshalJSON accepts "application" as an array or a single object.
func (a *Applications) UnmarshalJSON(data []byte) error {
	var raw struct {
		VersionsDelta json.RawMessage `json:"versions__delta"`
		AppsHashcode  json.RawMessage `json:"apps__hashcode"`
		Application   json.RawMessage `json:"application"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	var err error
	if a.VersionsDelta, err = scalarString(raw.VersionsDelta); err != nil {
		return fmt.Errorf("versions__delta: %w", err)
	}
	if a.AppsHashcode, err = scalarString(raw.AppsHashcode); err != nil {
		return fmt.Errorf("apps__hashcode: %w", err)
	}
	a.Applications, err = oneOrMany[Application](raw.Application)
	return err
}

// Flatten returns all instances in server order.
func (a *Applications) Flatten() []Instance {
	var out []Instance
	for _, app := range a.Applications {
		out = append(out, app.Instances...)
	}
	return out
}

// oneOrMany 兼容旧版服务端把单元素数组折叠为对象的情况
func oneOrMany[T any](raw json.RawMessage) ([]T, error) {
	trimmed := strings.TrimSpace(string(raw))
	if trimmed == "" || trimmed == "null" {
		return nil, nil
	}
	if strings.HasPrefix(trimmed, "[") {
		var many []T
		if err := json.Unmarshal(raw, &many); err != nil {
			return nil, err
		}
		return many, nil
	}
	var one T
	if err := json.Unmarshal(raw, &one); err != nil {
		return nil, err
	}
	return []T{one}, nil
}
