package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"path"
	"time"

	"github.com/avast/retry-go"
	wx "github.com/cdzombak/libwx"
	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/influxdata/influxdb-client-go/v2"
	influxdb2api "github.com/influxdata/influxdb-client-go/v2/api"

	"tcc_influx_connector/tcc"
)

type MQTTConfig struct {
	Enabled   bool   `json:"enabled"`
	Server    string `json:"server"`
	Port      int    `json:"port,omitempty"`
	Username  string `json:"username,omitempty"`
	Password  string `json:"password,omitempty"`
	TopicRoot string `json:"topic_root"`
}

// Config describes the tcc_influx_connector program's configuration.
// It is used to parse the configuration JSON file.
type Config struct {
	Email                     string     `json:"email"`
	Password                  string     `json:"password"`
	WorkDir                   string     `json:"work_dir,omitempty"`
	LocationID                int        `json:"location_id,omitempty"`
	ZoneID                    int        `json:"zone_id,omitempty"`
	InfluxServer              string     `json:"influx_server"`
	InfluxOrg                 string     `json:"influx_org,omitempty"`
	InfluxUser                string     `json:"influx_user,omitempty"`
	InfluxPass                string     `json:"influx_password,omitempty"`
	InfluxToken               string     `json:"influx_token,omitempty"`
	InfluxBucket              string     `json:"influx_bucket"`
	InfluxHealthCheckDisabled bool       `json:"influx_health_check_disabled"`
	MQTT                      MQTTConfig `json:"mqtt"`
	WriteSetPoints            bool       `json:"write_set_points"`
	WriteOutdoor              bool       `json:"write_outdoor"`
	AcknowledgeAlerts         bool       `json:"acknowledge_alerts"`
}

const (
	zoneNameTag            = "zone_name"
	source                 = "tcc"
	sourceTag              = "data_source"
	zoneMeasurementName    = "tcc_zone"
	outdoorMeasurementName = "tcc_outdoor"
)

var version = "<dev>"

func main() {
	configFile := flag.String("config", "", "Configuration JSON file.")
	listZones := flag.Bool("list-zones", false, "List available locations and zones, then exit.")
	printVersion := flag.Bool("version", false, "Print version and exit.")
	flag.Parse()

	if *printVersion {
		fmt.Println(version)
		os.Exit(0)
	}

	if *configFile == "" {
		fmt.Println("-config is required.")
		os.Exit(1)
	}

	config := Config{}
	cfgBytes, err := os.ReadFile(*configFile)
	if err != nil {
		log.Fatalf("Unable to read config file '%s': %s", *configFile, err)
	}
	if err = json.Unmarshal(cfgBytes, &config); err != nil {
		log.Fatalf("Unable to parse config file '%s': %s", *configFile, err)
	}
	if config.Email == "" || config.Password == "" {
		log.Fatal("email and password must be set in the config file.")
	}
	if config.WorkDir == "" {
		wd, err := os.Getwd()
		if err != nil {
			log.Fatalf("Unable to get current working directory: %s", err)
		}
		config.WorkDir = wd
	}

	session, err := tcc.NewSession(config.Email, config.Password,
		tcc.WithCookieJar(tcc.NewFileJar(path.Join(config.WorkDir, "tcc-cookie-cache"))))
	if err != nil {
		log.Fatal(err)
	}
	defer session.Close()

	if *listZones {
		locations, err := session.GetLocations(true)
		if err != nil {
			log.Fatal(err)
		}
		for _, l := range locations {
			fmt.Printf("'%s': location ID %d\n", l.Name(), l.ID())
			zones, err := l.Zones()
			if err != nil {
				log.Fatal(err)
			}
			for _, z := range zones {
				name, err := z.Name()
				if err != nil {
					log.Fatal(err)
				}
				fmt.Printf("\t'%s': zone ID %d\n", name, z.ID())
			}
		}
		os.Exit(0)
	}

	var influxClient influxdb2.Client
	var influxWriteAPI influxdb2api.WriteAPIBlocking
	influxEnabled := config.InfluxServer != "" && config.InfluxBucket != ""
	// TODO(cdzombak): make timeout configurable
	const influxTimeout = 3 * time.Second

	if influxEnabled {
		authString := ""
		if config.InfluxUser != "" || config.InfluxPass != "" {
			authString = fmt.Sprintf("%s:%s", config.InfluxUser, config.InfluxPass)
		} else if config.InfluxToken != "" {
			authString = config.InfluxToken
		}
		influxClient = influxdb2.NewClient(config.InfluxServer, authString)
		if !config.InfluxHealthCheckDisabled {
			ctx, cancel := context.WithTimeout(context.Background(), influxTimeout)
			defer cancel()
			health, err := influxClient.Health(ctx)
			if err != nil {
				log.Fatalf("failed to check InfluxDB health: %v", err)
			}
			if health.Status != "pass" {
				log.Fatalf("InfluxDB did not pass health check: status %s; message '%s'", health.Status, *health.Message)
			}
		}
		influxWriteAPI = influxClient.WriteAPIBlocking(config.InfluxOrg, config.InfluxBucket)
		log.Printf("Connected to InfluxDB at %s", config.InfluxServer)
	} else {
		log.Printf("InfluxDB is not configured, data will not be written to InfluxDB")
	}

	var mqttClient mqtt.Client
	mqttEnabled := config.MQTT.Enabled
	if mqttEnabled {
		if config.MQTT.Server == "" || config.MQTT.TopicRoot == "" {
			log.Fatalf("MQTT is enabled but server or topic_root is not set in the config file.")
		}

		opts := mqtt.NewClientOptions()
		port := config.MQTT.Port
		if port == 0 {
			port = 1883 // Default MQTT port
		}
		broker := fmt.Sprintf("tcp://%s:%d", config.MQTT.Server, port)
		opts.AddBroker(broker)

		if config.MQTT.Username != "" {
			opts.SetUsername(config.MQTT.Username)
			opts.SetPassword(config.MQTT.Password)
		}

		opts.SetClientID(fmt.Sprintf("tcc_influx_connector_%d", time.Now().Unix()))
		opts.SetAutoReconnect(true)
		opts.SetConnectRetry(true)

		mqttClient = mqtt.NewClient(opts)
		if token := mqttClient.Connect(); token.Wait() && token.Error() != nil {
			log.Fatalf("Failed to connect to MQTT broker: %v", token.Error())
		}

		log.Printf("Connected to MQTT broker at %s", broker)
	}

	// Require at least one output method to be enabled:
	if !influxEnabled && !mqttEnabled {
		log.Fatalf("At least one output method (InfluxDB or MQTT) must be configured")
	}

	zonesToPoll := func() ([]*tcc.Zone, error) {
		if config.ZoneID != 0 {
			return []*tcc.Zone{session.GetZone(config.ZoneID)}, nil
		}
		if config.LocationID != 0 {
			return session.GetZonesByLocation(config.LocationID, true)
		}
		location, err := session.DefaultLocation()
		if err != nil {
			return nil, err
		}
		return location.Zones()
	}

	doUpdate := func() {
		if err := retry.Do(
			func() error {
				zones, err := zonesToPoll()
				if err != nil {
					return err
				}

				for _, zone := range zones {
					ok, err := zone.LoadDetails()
					if err != nil {
						return err
					}
					if !ok {
						log.Printf("zone %d declined its data session; skipping this cycle", zone.ID())
						continue
					}
					if err := writeZone(config, influxEnabled, influxWriteAPI, mqttClient, zone); err != nil {
						return err
					}
				}
				return nil
			},
			retry.Attempts(3),
			retry.Delay(5*time.Second),
		); err != nil {
			log.Fatal(err)
		}
	}

	doUpdate()
	for range time.Tick(5 * time.Minute) {
		doUpdate()
	}
}

// writeZone sends one freshly loaded zone's state to every configured sink.
func writeZone(config Config, influxEnabled bool, influxWriteAPI influxdb2api.WriteAPIBlocking, mqttClient mqtt.Client, zone *tcc.Zone) error {
	const influxTimeout = 3 * time.Second
	now := time.Now()

	name, err := zone.Name()
	if err != nil {
		return err
	}
	if name == "" {
		name = fmt.Sprintf("zone %d", zone.ID())
	}
	runStatus, err := zone.RunStatus()
	if err != nil {
		return err
	}
	units, err := zone.DisplayUnits()
	if err != nil {
		return err
	}
	temp, err := zone.DispTemperature()
	if err != nil {
		return err
	}
	humidity, err := zone.IndoorHumidity()
	if err != nil {
		return err
	}
	coolSetPoint, err := zone.CoolSetpoint()
	if err != nil {
		return err
	}
	heatSetPoint, err := zone.HeatSetpoint()
	if err != nil {
		return err
	}
	hold, err := zone.Hold()
	if err != nil {
		return err
	}
	gatewayLost, err := zone.GatewayIsLost()
	if err != nil {
		return err
	}
	hasFan, err := zone.HasFan()
	if err != nil {
		return err
	}
	alerts, err := zone.Alerts()
	if err != nil {
		return err
	}

	fields := map[string]interface{}{
		"hold":         hold,
		"gateway_lost": gatewayLost,
		"alert_count":  len(alerts),
	}
	if temp.Available {
		indoorF := tempToF(temp.Value, units)
		fields["temperature"] = indoorF.Unwrap()
		fields["temperature_f"] = indoorF.Unwrap()
		fields["temperature_c"] = indoorF.C().Unwrap()
	}
	if humidity.Available {
		fields["humidity"] = wx.ClampedRelHumidity(humidity.Value).Unwrap()
	}
	if config.WriteSetPoints {
		if coolSetPoint.Available {
			f := tempToF(coolSetPoint.Value, units)
			fields["cool_set_point"] = f.Unwrap()
			fields["cool_set_point_f"] = f.Unwrap()
			fields["cool_set_point_c"] = f.C().Unwrap()
		}
		if heatSetPoint.Available {
			f := tempToF(heatSetPoint.Value, units)
			fields["heat_set_point"] = f.Unwrap()
			fields["heat_set_point_f"] = f.Unwrap()
			fields["heat_set_point_c"] = f.C().Unwrap()
		}
	}
	if hasFan {
		fanRunning, err := zone.FanIsRunning()
		if err != nil {
			return err
		}
		fields["fan_running"] = fanRunning
	}

	fmt.Printf("Zone '%s' at %s:\n", name, now.Format(time.RFC3339))
	if temp.Available {
		fmt.Printf("\ttemperature: %d deg%s\n", temp.Value, units)
	}
	if humidity.Available {
		fmt.Printf("\thumidity: %d%%\n", humidity.Value)
	}
	fmt.Printf("\trun status: %s\n\thold: %t\n\talerts: %d\n", runStatus, hold, len(alerts))

	if err := retry.Do(func() error {
		if influxEnabled {
			ctx, cancel := context.WithTimeout(context.Background(), influxTimeout)
			defer cancel()
			if err := influxWriteAPI.WritePoint(ctx,
				influxdb2.NewPoint(
					zoneMeasurementName,
					map[string]string{
						zoneNameTag:  name,
						sourceTag:    source,
						"run_status": runStatus,
					},
					fields,
					now,
				)); err != nil {
				return err
			}
		}
		if mqttClient != nil {
			return publishFieldsToMQTT(mqttClient, config, fmt.Sprintf("zone/%d", zone.ID()), fields)
		}
		return nil
	}, retry.Attempts(3), retry.Delay(1*time.Second)); err != nil {
		return err
	}

	if config.WriteOutdoor {
		if err := writeOutdoor(config, influxEnabled, influxWriteAPI, mqttClient, zone, name, units, now); err != nil {
			return err
		}
	}

	if config.AcknowledgeAlerts {
		for _, a := range alerts {
			if a.Acknowledgable() {
				log.Printf("acknowledging alert on zone %d: %s", zone.ID(), a.Text())
				a.AcknowledgeAsync()
			}
		}
	}

	return nil
}

// writeOutdoor sends the zone's outdoor sensor readings, when it has any.
func writeOutdoor(config Config, influxEnabled bool, influxWriteAPI influxdb2api.WriteAPIBlocking, mqttClient mqtt.Client, zone *tcc.Zone, name, units string, now time.Time) error {
	const influxTimeout = 3 * time.Second

	outdoorTemp, err := zone.OutdoorTemperature()
	if err != nil {
		return err
	}
	outdoorHumidity, err := zone.OutdoorHumidity()
	if err != nil {
		return err
	}
	if !outdoorTemp.Available && !outdoorHumidity.Available {
		return nil
	}

	fields := map[string]interface{}{}
	if outdoorTemp.Available {
		f := tempToF(outdoorTemp.Value, units)
		fields["outdoor_temp"] = f.Unwrap()
		fields["outdoor_temp_f"] = f.Unwrap()
		fields["outdoor_temp_c"] = f.C().Unwrap()
		fields["recommended_max_indoor_humidity"] = wx.IndoorHumidityRecommendationF(f).Unwrap()
	}
	if outdoorHumidity.Available {
		fields["outdoor_humidity"] = wx.ClampedRelHumidity(outdoorHumidity.Value).Unwrap()
	}

	return retry.Do(func() error {
		if influxEnabled {
			ctx, cancel := context.WithTimeout(context.Background(), influxTimeout)
			defer cancel()
			if err := influxWriteAPI.WritePoint(ctx,
				influxdb2.NewPoint(
					outdoorMeasurementName,
					map[string]string{
						zoneNameTag: name,
						sourceTag:   source,
					},
					fields,
					now,
				)); err != nil {
				return err
			}
		}
		if mqttClient != nil {
			return publishFieldsToMQTT(mqttClient, config, fmt.Sprintf("zone/%d/outdoor", zone.ID()), fields)
		}
		return nil
	}, retry.Attempts(3), retry.Delay(1*time.Second))
}

// tempToF interprets a portal temperature in the zone's display units.
func tempToF(v int, units string) wx.TempF {
	if units == "C" {
		return wx.TempC(float64(v)).F()
	}
	return wx.TempF(float64(v))
}
