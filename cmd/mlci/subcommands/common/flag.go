package common

import (
	"strings"

	"github.com/opst/mlci/pkg/configs/pipeline"
)

// CommonFlags are flags of the command group, shared by all subcommands.
//
// Empty values are filled by environment variables later, by Resolve.
type CommonFlags struct {
	Config     string `flag:"config" alias:"c" metavar:"FILE" help:"pipeline config file. If it is missing, defaults are used"`
	Bucket     string `flag:"bucket" metavar:"NAME" help:"bucket holding datasets and the report file (env: BUCKET_NAME)"`
	Prefix     string `flag:"prefix" metavar:"PREFIX" help:"key prefix in the bucket (env: PREFIX)"`
	Region     string `flag:"region" metavar:"REGION" help:"AWS region (env: AWS_DEFAULT_REGION, or REGION in the training container)"`
	S3Endpoint string `flag:"s3-endpoint" metavar:"URL" help:"endpoint of S3 compatible storage. Prefix with http:// to disable TLS (env: S3_ENDPOINT)"`
}

func DefaultCommonFlags() CommonFlags {
	return CommonFlags{Config: pipeline.DefaultConfigFile}
}

// Storage returns storage settings given by flags.
func (cf CommonFlags) Storage() pipeline.Storage {
	return pipeline.Storage{
		Bucket:   cf.Bucket,
		Prefix:   cf.Prefix,
		Endpoint: cf.S3Endpoint,
	}
}

// Endpoint splits the endpoint setting into host[:port] and whether TLS is disabled.
//
// "http://host" disables TLS. "https://host" and bare "host" do not.
func Endpoint(endpoint string) (string, bool) {
	insecure := false
	switch {
	case strings.HasPrefix(endpoint, "http://"):
		insecure = true
		endpoint = strings.TrimPrefix(endpoint, "http://")
	case strings.HasPrefix(endpoint, "https://"):
		endpoint = strings.TrimPrefix(endpoint, "https://")
	}
	return strings.TrimSuffix(endpoint, "/"), insecure
}
