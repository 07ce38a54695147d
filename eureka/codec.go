package eureka

import (
	"encoding/json"
	"encoding/xml"
	"fmt"
	"strings"
)

// Wire formats.
const (
	FormatXML  = "xml"
	FormatJSON = "json"
)

// Codec 注册中心报文编解码器
type Codec interface {
	// ContentType is used for both Content-Type and Accept.
	ContentType() string
	EncodeInstance(inst *Instance) ([]byte, error)
	DecodeApplications(data []byte) (*Applications, error)
	DecodeApplication(data []byte) (*Application, error)
	DecodeInstance(data []byte) (*Instance, error)
}

// CodecFor returns the codec for format ("xml" or "json", case-insensitive).
func CodecFor(format string) (Codec, error) {
	switch strings.ToLower(format) {
	case "", FormatXML:
		return xmlCodec{}, nil
	case FormatJSON:
		return jsonCodec{}, nil
	}
	return nil, fmt.Errorf("unsupported wire format %q", format)
}

// prepareForWire fills the data center class and status the server expects.
func prepareForWire(inst *Instance) Instance {
	out := inst.Clone()
	if out.DataCenterInfo.Name == "" {
		out.DataCenterInfo = MyOwnDataCenter()
	}
	if out.DataCenterInfo.Class == "" {
		out.DataCenterInfo.Class = defaultDataCenterClass
		if out.DataCenterInfo.Name == DataCenterAmazon {
			out.DataCenterInfo.Class = amazonDataCenterClass
		}
	}
	if out.Status == "" {
		out.Status = StatusUnknown
	}
	return out
}

func normalizeInstances(instances []Instance) {
	for i := range instances {
		if instances[i].Status == "" {
			instances[i].Status = StatusUnknown
		}
	}
}

func normalizeApplications(apps *Applications) {
	for i := range apps.Applications {
		normalizeInstances(apps.Applications[i].Instances)
	}
}

// ============================================
// XML
// ============================================

type xmlCodec struct{}

func (xmlCodec) ContentType() string { return "application/xml" }

func (xmlCodec) EncodeInstance(inst *Instance) ([]byte, error) {
	out := prepareForWire(inst)
	return xml.Marshal(&out)
}

func (xmlCodec) DecodeApplications(data []byte) (*Applications, error) {
	var apps Applications
	if err := xml.Unmarshal(data, &apps); err != nil {
		return nil, err
	}
	normalizeApplications(&apps)
	return &apps, nil
}

func (xmlCodec) DecodeApplication(data []byte) (*Application, error) {
	var app Application
	if err := xml.Unmarshal(data, &app); err != nil {
		return nil, err
	}
	normalizeInstances(app.Instances)
	return &app, nil
}

func (xmlCodec) DecodeInstance(data []byte) (*Instance, error) {
	var inst Instance
	if err := xml.Unmarshal(data, &inst); err != nil {
		return nil, err
	}
	if inst.Status == "" {
		inst.Status = StatusUnknown
	}
	return &inst, nil
}

// ============================================
// JSON（文档带一层 {"instance": ...} 之类的包装）
// ============================================

type jsonCodec struct{}

func (jsonCodec) ContentType() string { return "application/json" }

func (jsonCodec) EncodeInstance(inst *Instance) ([]byte, error) {
	out := prepareForWire(inst)
	return json.Marshal(struct {
		Instance *Instance `json:"instance"`
	}{&out})
}

func (jsonCodec) DecodeApplications(data []byte) (*Applications, error) {
	var doc struct {
		Applications *Applications `json:"applications"`
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	if doc.Applications == nil {
		return nil, fmt.Errorf("missing \"applications\" document")
	}
	normalizeApplications(doc.Applications)
	return doc.Applications, nil
}

func (jsonCodec) DecodeApplication(data []byte) (*Application, error) {
	var doc struct {
		Application *Application `json:"application"`
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	if doc.Application == nil {
		return nil, fmt.Errorf("missing \"application\" document")
	}
	normalizeInstances(doc.Application.Instances)
	return doc.Application, nil
}

func (jsonCodec) DecodeInstance(data []byte) (*Instance, error) {
	var doc struct {
		Instance *Instance `json:"instance"`
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	if doc.Instance == nil {
		return nil, fmt.Errorf("missing \"instance\" document")
	}
	if doc.Instance.Status == "" {
		doc.Instance.Status = StatusUnknown
	}
	return doc.Instance, nil
}
