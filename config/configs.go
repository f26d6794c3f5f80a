package config

import (
	"encoding/xml"
	"fmt"
	"os"
	"strings"
	"time"
)

// 默认配置文件路径，可用 RASTER_CONFIG 覆盖
const DefaultConfigFile = "config.xml"

var MainConfig Config

type Config struct {
	XMLName            xml.Name `xml:"config"`
	MainRouter         string   `xml:"MainRouter"`
	DBType             string   `xml:"dbtype"`
	Dbname             string   `xml:"dbname"`
	Host               string   `xml:"host"`
	Port               string   `xml:"port"`
	Username           string   `xml:"user"`
	Password           string   `xml:"password"`
	SQLite             string   `xml:"sqlite"`
	UploadPath         string   `xml:"UploadPath"`
	GeoserverPath      string   `xml:"GeoserverPath"`
	GeoserverWorkspace string   `xml:"GeoserverWorkspace"`
	GeoserverUser      string   `xml:"GeoserverUser"`
	GeoserverPassword  string   `xml:"GeoserverPassword"`
	GeoserverTimeout   int      `xml:"GeoserverTimeout"` // 秒
	JWTSecret          string   `xml:"JWTSecret"`
	AllowOrigins       string   `xml:"AllowOrigins"`
	Debug              bool     `xml:"debug"`
}

// LoadConfig 读取XML配置并补全默认值
func LoadConfig(path string) (*Config, error) {
	if path == "" {
		path = os.Getenv("RASTER_CONFIG")
	}
	if path == "" {
		path = DefaultConfigFile
	}

	xmlFile, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open config %s: %w", path, err)
	}
	defer xmlFile.Close()

	var cfg Config
	if err := xml.NewDecoder(xmlFile).Decode(&cfg); err != nil {
		return nil, fmt.Errorf("decode config %s: %w", path, err)
	}
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	MainConfig = cfg
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.MainRouter == "" {
		c.MainRouter = ":8426"
	}
	if c.DBType == "" {
		c.DBType = "sqlite"
	}
	if c.SQLite == "" {
		c.SQLite = "./raster.db"
	}
	if c.UploadPath == "" {
		c.UploadPath = "./upload"
	}
	if c.GeoserverTimeout <= 0 {
		c.GeoserverTimeout = 120
	}
	// 导入接口的路径都是拼接在 GeoserverPath 之后
	if c.GeoserverPath != "" && !strings.HasSuffix(c.GeoserverPath, "/") {
		c.GeoserverPath += "/"
	}
}

func (c *Config) validate() error {
	switch c.DBType {
	case "postgres", "sqlite":
	default:
		return fmt.Errorf("unsupported dbtype %q", c.DBType)
	}
	if c.JWTSecret == "" {
		return fmt.Errorf("JWTSecret is required")
	}
	return nil
}

// DSN postgres连接串
func (c *Config) DSN() string {
	return fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%s sslmode=disable TimeZone=UTC", c.Host, c.Username, c.Password, c.Dbname, c.Port)
}

func (c *Config) Timeout() time.Duration {
	return time.Duration(c.GeoserverTimeout) * time.Second
}

// Origins CORS 允许的来源，为空表示全部
func (c *Config) Origins() []string {
	var out []string
	for _, o := range strings.Split(c.AllowOrigins, ",") {
		if o = strings.TrimSpace(o); o != "" {
			out = append(out, o)
		}
	}
	return out
}
