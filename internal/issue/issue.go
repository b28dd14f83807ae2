// SPDX-License-Identifier: MPL-2.0

package issue

import (
	"cmp"
	"slices"
	"strings"

	"github.com/charmbracelet/glamour"
	"golang.org/x/exp/maps"

	"github.com/datafy/datafy/pkg/artifact"
)

type Id int

const (
	UnknownTypeId Id = iota + 1
	CorruptArchiveId
	DecodeFailedId
	TooLargeId
	HTTPStatusId
	NetworkFailureId
	IOFailureId
	InternalFailureId
	TimedOutId
	ConfigLoadFailedId
)

type MarkdownMsg string

type HttpLink string

type Issue struct {
	id       Id
	mdMsg    MarkdownMsg
	extLinks []HttpLink
}

func (i *Issue) Id() Id {
	return i.id
}

func (i *Issue) MarkdownMsg() MarkdownMsg {
	return i.mdMsg
}

// ExtLinks returns a copy of the reference links.
func (i *Issue) ExtLinks() []HttpLink {
	return slices.Clone(i.extLinks)
}

// Render renders the guide with the glamour style at stylePath ("" picks
// glamour's automatic style).
func (i *Issue) Render(stylePath string) (string, error) {
	md := string(i.mdMsg)
	if len(i.extLinks) > 0 {
		var sb strings.Builder
		sb.WriteString(md)
		sb.WriteString("\n\n## See also\n")
		for _, link := range i.extLinks {
			sb.WriteString("- <" + string(link) + ">\n")
		}
		md = sb.String()
	}
	if stylePath == "" {
		stylePath = "auto"
	}
	return render(md, stylePath)
}

var (
	render = glamour.Render

	unknownTypeIssue = &Issue{
		id: UnknownTypeId,
		mdMsg: `
# Could not tell what this resource is

Neither the declared content type nor the first bytes of the body matched a
known format.

## Things you can try
- Pass the type explicitly:
~~~
$ datafy fetch --type text/csv:csv <uri>
~~~
- Map the server's content type to an extension in your config file:
~~~cue
mime_overrides: "application/x-custom": "csv"
~~~`,
		extLinks: []HttpLink{"https://www.iana.org/assignments/media-types/media-types.xhtml"},
	}

	corruptArchiveIssue = &Issue{
		id: CorruptArchiveId,
		mdMsg: `
# Archive could not be expanded

The resource was identified as a zip archive but could not be opened, one of
its members points outside the archive, or archives are nested deeper than
the configured limit.

## Things you can try
- Download the file and check it with ` + "`unzip -t`" + `
- Raise ` + "`fetch.max_archive_depth`" + ` if the nesting is expected`,
		extLinks: []HttpLink{"https://pkware.cachefly.net/webdocs/casestudies/APPNOTE.TXT"},
	}

	decodeFailedIssue = &Issue{
		id: DecodeFailedId,
		mdMsg: `
# Payload did not decode

The type was recognized, but the bytes are not valid for it (a CSV with
unbalanced quotes, truncated JSON, a GeoJSON document without a type).

## Things you can try
- Check whether the publisher labelled the file with the wrong type
- Fetch with an explicit ` + "`--type`" + ` to force another decoder`,
	}

	tooLargeIssue = &Issue{
		id: TooLargeId,
		mdMsg: `
# Resource is over the size limit

The advertised or received size exceeded the configured limit, so the body
was not kept.

## Things you can try
- Raise the limit for this run:
~~~
$ datafy fetch --size-limit 0 <uri>
~~~
- Or set ` + "`fetch.size_limit`" + ` in your config file (0 means unlimited)`,
	}

	httpStatusIssue = &Issue{
		id: HTTPStatusId,
		mdMsg: `
# Server answered with an error status

The GET request completed but the status code was not 2xx.

## Things you can try
- Open the URI in a browser to see whether it moved
- Some portals reject unknown clients; set ` + "`http.user_agent`" + ``,
		extLinks: []HttpLink{"https://www.rfc-editor.org/rfc/rfc9110#section-15"},
	}

	networkFailureIssue = &Issue{
		id: NetworkFailureId,
		mdMsg: `
# Network failure

The connection failed or was reset before the body was received. No retry
was attempted.

## Things you can try
- Retry later; transient failures are common on large catalogs
- Raise ` + "`http.get_timeout`" + ` for slow hosts`,
	}

	ioFailureIssue = &Issue{
		id: IOFailureId,
		mdMsg: `
# Local I/O failure

A local file could not be read, or the scratch directory used for archive
extraction could not be created.

## Things you can try
- Check that the path exists and is readable
- Point ` + "`fetch.scratch_dir`" + ` at a writable directory`,
	}

	internalFailureIssue = &Issue{
		id: InternalFailureId,
		mdMsg: `
# Internal failure

The fetch worker crashed or returned something unreadable.

## Things you can try
- Re-run with ` + "`--verbose`" + ` to see the worker's stderr
- Run in-process to get a stack trace:
~~~
$ datafy fetch --mode inprocess <uri>
~~~`,
	}

	timedOutIssue = &Issue{
		id: TimedOutId,
		mdMsg: `
# Fetch timed out

The resource did not finish within the deadline and the worker was stopped.
Nothing partial was kept.

## Things you can try
- Raise the deadline:
~~~
$ datafy fetch --deadline 5m <uri>
~~~`,
	}

	configLoadFailedIssue = &Issue{
		id: ConfigLoadFailedId,
		mdMsg: `
# Failed to load configuration

## Things you can try
- Print the effective configuration:
~~~
$ datafy config show
~~~
- Write a fresh default file:
~~~
$ datafy config init
~~~`,
		extLinks: []HttpLink{"https://cuelang.org/docs/"},
	}

	issues = map[Id]*Issue{
		unknownTypeIssue.Id():      unknownTypeIssue,
		corruptArchiveIssue.Id():   corruptArchiveIssue,
		decodeFailedIssue.Id():     decodeFailedIssue,
		tooLargeIssue.Id():         tooLargeIssue,
		httpStatusIssue.Id():       httpStatusIssue,
		networkFailureIssue.Id():   networkFailureIssue,
		ioFailureIssue.Id():        ioFailureIssue,
		internalFailureIssue.Id():  internalFailureIssue,
		timedOutIssue.Id():         timedOutIssue,
		configLoadFailedIssue.Id(): configLoadFailedIssue,
	}

	kindIssues = map[artifact.ErrorKind]Id{
		artifact.KindUnknownType:    UnknownTypeId,
		artifact.KindCorruptArchive: CorruptArchiveId,
		artifact.KindDecode:         DecodeFailedId,
		artifact.KindTooLarge:       TooLargeId,
		artifact.KindHTTPStatus:     HTTPStatusId,
		artifact.KindNetwork:        NetworkFailureId,
		artifact.KindIO:             IOFailureId,
		artifact.KindInternal:       InternalFailureId,
	}
)

// Values returns every issue ordered by Id.
func Values() []*Issue {
	values := maps.Values(issues)
	slices.SortFunc(values, func(a, b *Issue) int { return cmp.Compare(a.id, b.id) })
	return values
}

func Get(id Id) *Issue {
	return issues[id]
}

// ForOutcome returns the guide matching a non-OK outcome, or nil.
func ForOutcome(out artifact.Outcome) *Issue {
	if out.IsTimedOut() {
		return issues[TimedOutId]
	}
	if id, ok := kindIssues[out.Kind]; ok {
		return issues[id]
	}
	return nil
}
