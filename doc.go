// Package canopy reads, writes and lifts SomaScan ADAT files.
//
// An ADAT file is a tab separated text document holding a key/value header,
// per-analyte column metadata, per-sample row metadata and a samples by
// analytes matrix of measurements (RFU). Canopy parses it into an
// adat.Record, writes records back byte for byte, converts measurements
// between assay signal spaces and exports records to columnar formats.
//
// # Architecture
//
// Canopy is organised around one in-memory type, adat.Record, and a set of
// packages that produce or consume it:
//
//  1. Format: pkg/adat parses and serializes ADAT documents. Recoverable
//     problems in a file are reported as diagnostics next to the record
//     instead of failing the read.
//
//  2. Lifting: pkg/lift rescales every analyte by a factor read from an
//     annotations table (pkg/annotations) along a path such as
//     "v4.0 -> v4.1" for a sample matrix.
//
//  3. Export: pkg/formats/columnar writes a record to Parquet, Arrow IPC or
//     Avro and reads it back without loss.
//
// # Quick Start
//
// Lift a study to the v4.1 signal space:
//
//	rec, _, err := adat.ReadFile("study.adat", adat.ReadOptions{})
//	if err != nil {
//	    return err
//	}
//	table, _, err := annotations.ReadFile("annotations.csv", annotations.DefaultReadOptions())
//	if err != nil {
//	    return err
//	}
//	lifted, err := lift.Lift(rec, table, "v4.1")
//	if err != nil {
//	    return err
//	}
//	return adat.WriteFile("study.v4.1.adat.gz", lifted, adat.DefaultWriteOptions())
//
// # Key Packages
//
//	pkg/adat               - Record model, reader and writer
//	pkg/lift               - Signal space lifting engine and path table
//	pkg/annotations        - Scale factor tables read from CSV
//	pkg/formats/columnar   - Parquet, Arrow and Avro export
//	pkg/compression        - File compression chosen by suffix
//	pkg/config             - YAML configuration with environment overrides
//	pkg/errors             - Structured error handling
//	pkg/logger             - Structured logging
//	pkg/metrics            - Prometheus metrics written to a textfile
//	pkg/observability      - OpenTelemetry spans written to a file
//
// # Command Line
//
// The canopy command wraps the packages above:
//
//	canopy inspect study.adat --json
//	canopy convert study.adat study.adat.gz --no-round
//	canopy lift study.adat annotations.csv study.v4.1.adat --to v4.1
//	canopy export study.adat study.parquet
//
// Every command accepts --config, --log-level, --metrics-file and
// --trace-file. Environment variables prefixed with CANOPY_ override the
// configuration file, e.g. CANOPY_WRITER_ROUND_RFU=false.
package canopy
