// Package config provides the Canopy configuration.
//
// The configuration is organized into sections, one per component:
//   - Reader: ADAT parsing options
//   - Writer: ADAT serialization options
//   - Lift: target version and supported lift paths
//   - Annotations: scale factor table loading
//   - Export: columnar export format and codec
//   - Logging and Metrics: ambient settings
//
// # Usage
//
//	cfg, err := config.Load("canopy.yaml")
//	if err != nil {
//		log.Fatal(err)
//	}
//	rec, diags, err := adat.ReadFile(path, cfg.ReadOptions(logger.Get()))
//
// # File Format
//
//	reader:
//	  compatibility_mode: false
//	  verify_checksum: true
//	writer:
//	  round_rfu: true
//	  v3_seqids: false
//	  compression: best
//	lift:
//	  target: v4.1
//	  paths:
//	    - {from: v4.0, to: v4.1, matrix: Plasma}
//	annotations:
//	  index_column: SeqId
//	  skip_rows: 0
//	  approved_md5: ["${CANOPY_ANNOTATIONS_MD5}"]
//	export:
//	  format: parquet
//	  compression: zstd
//	logging:
//	  level: info
//	  encoding: console
//	metrics:
//	  textfile: /var/lib/node_exporter/canopy.prom
//
// # Environment Variables
//
// References of the form ${VAR_NAME} are expanded before the file is
// parsed. Any key can also be overridden with a CANOPY_ variable whose name
// is the key path joined by underscores:
//
//	CANOPY_WRITER_ROUND_RFU=false
//	CANOPY_LOGGING_LEVEL=debug
package config
