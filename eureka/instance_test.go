package eureka

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInstance_ID(t *testing.T) {
	inst := testInstance("ORDERS", "orders-1.local", "10.0.0.1", 8080, StatusUp)
	assert.Equal(t, "orders-1.local", inst.ID())

	inst.InstanceID = "orders-1:8080"
	assert.Equal(t, "orders-1:8080", inst.ID())
}

func TestInstance_CloneIsDeep(t *testing.T) {
	inst := testInstance("ORDERS", "h", "10.0.0.1", 8080, StatusUp)
	inst.Metadata = Metadata{"zone": "a"}
	inst.LeaseInfo = &LeaseInfo{DurationInSecs: 90}
	inst.DataCenterInfo = AmazonDataCenter(AmazonMetadata{InstanceID: "i-1"})

	c := inst.Clone()
	c.Metadata["zone"] = "b"
	c.LeaseInfo.DurationInSecs = 30
	c.DataCenterInfo.Metadata.InstanceID = "i-2"

	assert.Equal(t, "a", inst.Metadata["zone"])
	assert.Equal(t, 90, inst.LeaseInfo.DurationInSecs)
	assert.Equal(t, "i-1", inst.DataCenterInfo.Metadata.InstanceID)
}

func TestParseStatus(t *testing.T) {
	tests := []struct {
		in      string
		want    Status
		wantErr bool
	}{
		{"UP", StatusUp, false},
		{"DOWN", StatusDown, false},
		{"STARTING", StatusStarting, false},
		{"OUT_OF_SERVICE", StatusOutOfService, false},
		{"UNKNOWN", StatusUnknown, false},
		{"", StatusUnknown, false},
		{"up", "", true},
		{"RUNNING", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseStatus(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestStatus_MarshalText(t *testing.T) {
	b, err := Status("").MarshalText()
	require.NoError(t, err)
	assert.Equal(t, "UNKNOWN", string(b))

	_, err = Status("BOGUS").MarshalText()
	assert.Error(t, err)
}

func TestPort_JSON(t *testing.T) {
	b, err := json.Marshal(NewPort(8080))
	require.NoError(t, err)
	assert.JSONEq(t, `{"$":8080,"@enabled":"true"}`, string(b))

	t.Run("string value and bool flag", func(t *testing.T) {
		var p Port
		require.NoError(t, json.Unmarshal([]byte(`{"$":"9090","@enabled":true}`), &p))
		assert.Equal(t, Port{Value: 9090, Enabled: true}, p)
	})

	t.Run("disabled", func(t *testing.T) {
		var p Port
		require.NoError(t, json.Unmarshal([]byte(`{"$":443,"@enabled":"false"}`), &p))
		_, ok := p.Get()
		assert.False(t, ok)
	})

	t.Run("bad flag", func(t *testing.T) {
		var p Port
		assert.Error(t, json.Unmarshal([]byte(`{"$":443,"@enabled":"maybe"}`), &p))
	})
}

func TestMetadata_UnmarshalJSON(t *testing.T) {
	var md Metadata
	require.NoError(t, json.Unmarshal([]byte(`{"@class":"java.util.Collections$EmptyMap"}`), &md))
	assert.Empty(t, md)

	require.NoError(t, json.Unmarshal([]byte(`{"management.port":8000,"zone":"a"}`), &md))
	assert.Equal(t, Metadata{"management.port": "8000", "zone": "a"}, md)
}

func TestInstance_Validate(t *testing.T) {
	valid := testInstance("ORDERS", "h", "10.0.0.1", 8080, StatusUp)
	require.NoError(t, valid.Validate())

	t.Run("missing app", func(t *testing.T) {
		inst := valid.Clone()
		inst.App = ""
		assert.Error(t, inst.Validate())
	})

	t.Run("enabled port out of range", func(t *testing.T) {
		inst := valid.Clone()
		inst.Port = NewPort(70000)
		assert.Error(t, inst.Validate())
	})

	t.Run("disabled port is not checked", func(t *testing.T) {
		inst := valid.Clone()
		inst.SecurePort = Port{Value: 0}
		assert.NoError(t, inst.Validate())
	})

	t.Run("amazon without metadata", func(t *testing.T) {
		inst := valid.Clone()
		inst.DataCenterInfo = DataCenterInfo{Name: DataCenterAmazon}
		assert.Error(t, inst.Validate())
	})
}

func TestApplications_Flatten(t *testing.T) {
	apps := Applications{Applications: []Application{
		{Name: "A", Instances: []Instance{{HostName: "a1"}, {HostName: "a2"}}},
		{Name: "B", Instances: []Instance{{HostName: "b1"}}},
	}}
	var hosts []string
	for _, inst := range apps.Flatten() {
		hosts = append(hosts, inst.HostName)
	}
	assert.Equal(t, []string{"a1", "a2", "b1"}, hosts)
}
