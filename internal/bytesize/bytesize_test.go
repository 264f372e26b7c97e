package bytesize

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestParse(t *testing.T) {
	tests := []struct {
		input   string
		want    ByteSize
		wantErr bool
	}{
		{"1024", 1024, false},
		{"4Mi", 4 * MiB, false},
		{"4MiB", 4 * MiB, false},
		{"500Mi", 500 * MiB, false},
		{"1Gi", GiB, false},
		{"100MB", 100 * MB, false},
		{"2k", 2 * KB, false},
		{"1.5Ki", ByteSize(1536), false},
		{"0", 0, false},
		{"  64 Ki  ", 64 * KiB, false},
		{"", 0, true},
		{"abc", 0, true},
		{"12Xi", 0, true},
		{"-5Mi", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := Parse(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestUnmarshalYAML(t *testing.T) {
	t.Run("StringValue", func(t *testing.T) {
		var cfg struct {
			ChunkSize ByteSize `yaml:"chunk_size"`
		}
		require.NoError(t, yaml.Unmarshal([]byte("chunk_size: 4Mi"), &cfg))
		assert.Equal(t, 4*MiB, cfg.ChunkSize)
	})

	t.Run("PlainNumber", func(t *testing.T) {
		var cfg struct {
			ChunkSize ByteSize `yaml:"chunk_size"`
		}
		require.NoError(t, yaml.Unmarshal([]byte("chunk_size: 65536"), &cfg))
		assert.Equal(t, 64*KiB, cfg.ChunkSize)
	})

	t.Run("InvalidValue", func(t *testing.T) {
		var cfg struct {
			ChunkSize ByteSize `yaml:"chunk_size"`
		}
		assert.Error(t, yaml.Unmarshal([]byte("chunk_size: wat"), &cfg))
	})
}

func TestString(t *testing.T) {
	assert.Equal(t, "512B", ByteSize(512).String())
	assert.Equal(t, "4.00MiB", (4 * MiB).String())
	assert.Equal(t, "1.50KiB", ByteSize(1536).String())
	assert.Equal(t, "2.00GiB", (2 * GiB).String())
}
