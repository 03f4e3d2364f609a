package ddsql

import (
	"fmt"

	"github.com/spf13/viper"
)

// Keys of a catalog properties file
const (
	keySystemName = "db_system_name"
	keyHost       = "conn_ip"
	keyPort       = "port"
	keyDatabase   = "conn_path"
	keyUser       = "user_name"
	keyPassword   = "password"
	keySchema     = "dbschema"
)

// LoadConnInfo reads catalog connection parameters from a properties file.
func LoadConnInfo(path string) (ConnInfo, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("properties")
	if err := v.ReadInConfig(); err != nil {
		return ConnInfo{}, fmt.Errorf("read db properties %s: %w", path, err)
	}

	kind, err := ParseKind(v.GetString(keySystemName))
	if err != nil {
		return ConnInfo{}, err
	}

	c := ConnInfo{
		Kind:     kind,
		Host:     v.GetString(keyHost),
		Port:     v.GetInt(keyPort),
		Database: v.GetString(keyDatabase),
		Schema:   v.GetString(keySchema),
		User:     v.GetString(keyUser),
		Password: v.GetString(keyPassword),
	}
	if err := c.Validate(); err != nil {
		return ConnInfo{}, fmt.Errorf("db properties %s: %w", path, err)
	}
	return c, nil
}
