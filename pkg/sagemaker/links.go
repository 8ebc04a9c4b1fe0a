package sagemaker

import (
	"fmt"
	"net/url"

	"github.com/opst/mlci/pkg/objectstorage"
)

// Links are locations where users find a training job and what it made.
type Links struct {
	// ModelArtifacts is the S3 URI of the model archive.
	ModelArtifacts string

	// Logs is the CloudWatch console URL showing logs of the training job.
	Logs string

	// Invocation is the URL of the endpoint which will be deployed from the training job.
	Invocation string
}

func LinksFor(region, bucket, prefix, jobName string) Links {
	return Links{
		ModelArtifacts: objectstorage.URI(
			bucket,
			objectstorage.Key(prefix, fmt.Sprintf("output/%s/output/model.tar.gz", jobName)),
		),
		Logs: fmt.Sprintf(
			"https://%s.console.aws.amazon.com/cloudwatch/home?region=%s#logStream:group=/aws/sagemaker/TrainingJobs;prefix=%s",
			region, url.QueryEscape(region), jobName,
		),
		Invocation: fmt.Sprintf(
			"https://runtime.sagemaker.%s.amazonaws.com/endpoints/%s/invocations",
			region, url.PathEscape(jobName),
		),
	}
}
