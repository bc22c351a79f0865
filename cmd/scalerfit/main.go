package main

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"hivewatch/pkg/config"
	"hivewatch/pkg/feature"
	"hivewatch/pkg/histstore"
	"hivewatch/pkg/scaling"
	"hivewatch/pkg/structlog"
	"hivewatch/pkg/telemetry"
)

// scalerfit is the batch half of the normalization contract: it pulls the
// recent history of both measurements, fits per-modality center/scale and
// the protocol code table, and writes the scaler files the detector bundle
// references. Encoder and fusion artifacts come from the offline training
// job; this tool only refreshes the scaling side.
func main() {
	log := structlog.NewLogger("hivewatch-scalerfit", structlog.ParseLevel(config.Get("LOG_LEVEL", "info")), os.Stdout)

	dsn := config.Get("HIVEWATCH_POSTGRES_DSN", "postgres://localhost/telemetry?sslmode=disable")
	days := config.GetInt("HIVEWATCH_FIT_DAYS", 7)
	outDir := config.Get("HIVEWATCH_BUNDLE_DIR", "artifacts")
	version := config.Get("HIVEWATCH_BUNDLE_VERSION", time.Now().UTC().Format("20060102T150405Z"))

	store, err := histstore.Open(dsn, log)
	if err != nil {
		log.Fatal("historical store unavailable", structlog.Fields{"error": err.Error()})
	}
	defer store.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	if err := os.MkdirAll(outDir, 0755); err != nil {
		log.Fatal("cannot create output directory", structlog.Fields{"dir": outDir, "error": err.Error()})
	}

	netParams := fitNetwork(ctx, store, days, version, log)
	if err := netParams.Save(filepath.Join(outDir, "scaler_network.json")); err != nil {
		log.Fatal("cannot write network scaler", structlog.Fields{"error": err.Error()})
	}

	procParams := fitProcess(ctx, store, days, version, log)
	if err := procParams.Save(filepath.Join(outDir, "scaler_process.json")); err != nil {
		log.Fatal("cannot write process scaler", structlog.Fields{"error": err.Error()})
	}

	log.Info("scaler parameters fitted", structlog.Fields{
		"version": version,
		"dir":     outDir,
		"days":    days,
		"network": netParams.Len(),
		"process": procParams.Len(),
	})
}

func fitNetwork(ctx context.Context, store *histstore.Store, days int, version string, log *structlog.Logger) *scaling.Params {
	frame := store.FetchRange(ctx, histstore.Query{
		Bucket:        "network",
		TimeRangeDays: days,
		Measurement:   "network_connections",
		Columns:       feature.NetworkFeatureNames,
	})
	if frame.Empty() {
		log.Fatal("no network history to fit", structlog.Fields{"days": days})
	}

	protocols := frame.StringColumn("protocol")
	table := scaling.FitCategories(protocols)
	srcIPs := frame.StringColumn("src_ip")
	destIPs := frame.StringColumn("dest_ip")
	srcPorts := frame.FloatColumn("src_port")
	destPorts := frame.FloatColumn("dest_port")

	rows := make([][]float64, len(frame.Rows))
	for i := range rows {
		rows[i] = []float64{
			table[protocols[i]],
			feature.HashIdentifier(srcIPs[i]),
			feature.HashIdentifier(destIPs[i]),
			srcPorts[i],
			destPorts[i],
		}
	}

	params, err := scaling.Fit(telemetry.ModalityNetwork, version, feature.NetworkFeatureNames, rows,
		map[string]map[string]float64{"protocol": table})
	if err != nil {
		log.Fatal("network fit failed", structlog.Fields{"error": err.Error()})
	}
	return params
}

func fitProcess(ctx context.Context, store *histstore.Store, days int, version string, log *structlog.Logger) *scaling.Params {
	frame := store.FetchRange(ctx, histstore.Query{
		Bucket:        "process",
		TimeRangeDays: days,
		Measurement:   "process_activity",
		Columns:       feature.ProcessFeatureNames,
	})
	if frame.Empty() {
		log.Fatal("no process history to fit", structlog.Fields{"days": days})
	}

	names := frame.StringColumn("process_name")
	paths := frame.StringColumn("path")
	numeric := make(map[string][]float64)
	for _, col := range feature.ProcessFeatureNames {
		if col != "process_name" && col != "path" {
			numeric[col] = frame.FloatColumn(col)
		}
	}

	rows := make([][]float64, len(frame.Rows))
	for i := range rows {
		row := make([]float64, 0, len(feature.ProcessFeatureNames))
		for _, col := range feature.ProcessFeatureNames {
			switch col {
			case "process_name":
				row = append(row, feature.HashIdentifier(names[i]))
			case "path":
				row = append(row, feature.HashIdentifier(paths[i]))
			default:
				row = append(row, numeric[col][i])
			}
		}
		rows[i] = row
	}

	params, err := scaling.Fit(telemetry.ModalityProcess, version, feature.ProcessFeatureNames, rows, nil)
	if err != nil {
		log.Fatal("process fit failed", structlog.Fields{"error": err.Error()})
	}
	return params
}
