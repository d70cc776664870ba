package base

import (
	"bufio"
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRequestMarshalRead(t *testing.T) {
	u, err := ParseURL("rtsp://192.168.1.1/cam/1")
	require.NoError(t, err)

	req := Request{
		Method: Setup,
		URL:    u,
		Header: Header{
			"CSeq":      HeaderValue{"2"},
			"Transport": HeaderValue{"RTP/AVP;unicast;client_port=4000-4001"},
		},
	}

	encoded := req.Marshal()

	var decoded Request
	err = decoded.Read(bufio.NewReader(bytes.NewReader(encoded)))
	require.NoError(t, err)
	require.Equal(t, Setup, decoded.Method)
	require.Equal(t, "192.168.1.1", decoded.URL.Host)
	cseq, ok := decoded.Header.Get("CSeq")
	require.True(t, ok)
	require.Equal(t, "2", cseq)
}

func TestRequestWithBody(t *testing.T) {
	u, err := ParseURL("rtsp://192.168.1.1/cam/1")
	require.NoError(t, err)

	req := Request{
		Method: Describe,
		URL:    u,
		Header: Header{"CSeq": HeaderValue{"1"}},
		Body:   []byte("hello"),
	}

	encoded := req.Marshal()
	var decoded Request
	require.NoError(t, decoded.Read(bufio.NewReader(bytes.NewReader(encoded))))
	require.Equal(t, []byte("hello"), decoded.Body)
}

func TestResponseWriteRead(t *testing.T) {
	res := Response{
		StatusCode: StatusOK,
		Header: Header{
			"CSeq":    HeaderValue{"3"},
			"Session": HeaderValue{"12345678"},
		},
		Body: []byte("v=0\r\n"),
	}

	var buf bytes.Buffer
	bw := bufio.NewWriter(&buf)
	require.NoError(t, res.Write(bw))

	var decoded Response
	require.NoError(t, decoded.Read(bufio.NewReader(&buf)))
	require.Equal(t, StatusOK, decoded.StatusCode)
	require.Equal(t, []byte("v=0\r\n"), decoded.Body)
	session, ok := decoded.Header.Get("Session")
	require.True(t, ok)
	require.Equal(t, "12345678", session)
}

func TestResponseNoContentLengthMeansNoBody(t *testing.T) {
	raw := "RTSP/1.0 200 OK\r\nCSeq: 1\r\n\r\n"
	var decoded Response
	require.NoError(t, decoded.Read(bufio.NewReader(bytes.NewReader([]byte(raw)))))
	require.Nil(t, decoded.Body)
}
