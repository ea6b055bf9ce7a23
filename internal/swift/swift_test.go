// Copyright 2025 Globo.com
// Licensed under the AGPLv3, see LICENCE file for details.

package swift

import (
	"net/http"

	goosehttp "github.com/go-goose/goose/v5/http"
	"github.com/juju/testing"
	jc "github.com/juju/testing/checkers"
	gc "gopkg.in/check.v1"
)

type swiftSuite struct {
	testing.IsolationSuite
}

var _ = gc.Suite(&swiftSuite{})

// fakeCaller satisfies caller. HEAD requests are answered with the
// configured CORS value; written CORS values are captured.
type fakeCaller struct {
	testing.Stub
	cors    string
	written []string
}

func (f *fakeCaller) SendRequest(method, svcType, apiVersion, apiCall string, req *goosehttp.RequestData) error {
	f.AddCall("SendRequest", method, svcType, apiCall)
	if err := f.NextErr(); err != nil {
		return err
	}
	switch method {
	case "HEAD":
		req.RespHeaders = make(http.Header)
		if f.cors != "" {
			req.RespHeaders.Set(corsHeader, f.cors)
		}
	case "POST":
		f.written = append(f.written, req.ReqHeaders.Get(corsHeader))
	}
	return nil
}

func (s *swiftSuite) TestCreateContainerSendsHeaders(c *gc.C) {
	fake := &fakeCaller{}
	cli := &Client{api: fake}

	headers := make(http.Header)
	headers.Set("X-Container-Write", "infra:myteam_myinstance")
	headers.Set("X-Container-Read", ".r:*,infra:myteam_myinstance")
	err := cli.CreateContainer("e2opim", headers)
	c.Assert(err, jc.ErrorIsNil)

	fake.CheckCalls(c, []testing.StubCall{
		{FuncName: "SendRequest", Args: []interface{}{"PUT", "object-store", "e2opim"}},
	})
}

func (s *swiftSuite) TestSetCORSOnEmptyList(c *gc.C) {
	fake := &fakeCaller{}
	cli := &Client{api: fake}

	err := cli.SetCORS("mycontainer", "http://myhost")
	c.Assert(err, jc.ErrorIsNil)
	c.Check(fake.written, gc.DeepEquals, []string{"http://myhost"})
}

func (s *swiftSuite) TestSetCORSAppendsToExistingList(c *gc.C) {
	fake := &fakeCaller{cors: "http://somehost"}
	cli := &Client{api: fake}

	err := cli.SetCORS("mycontainer", "http://myhost")
	c.Assert(err, jc.ErrorIsNil)
	c.Check(fake.written, gc.DeepEquals, []string{"http://somehost http://myhost"})
}

func (s *swiftSuite) TestSetCORSIsIdempotent(c *gc.C) {
	fake := &fakeCaller{cors: "http://a.b.io https://a.b.io"}
	cli := &Client{api: fake}

	err := cli.SetCORS("mycontainer", "http://a.b.io https://a.b.io")
	c.Assert(err, jc.ErrorIsNil)

	// The origins were already present, so only the HEAD went out.
	c.Check(fake.written, gc.HasLen, 0)
	fake.CheckCalls(c, []testing.StubCall{
		{FuncName: "SendRequest", Args: []interface{}{"HEAD", "object-store", "mycontainer"}},
	})
}

func (s *swiftSuite) TestUnsetCORSRemovesWholeTokenOnly(c *gc.C) {
	fake := &fakeCaller{cors: "http://somehost https://otherhost http://thirdhost"}
	cli := &Client{api: fake}

	err := cli.UnsetCORS("mycontainer", "http://somehost")
	c.Assert(err, jc.ErrorIsNil)
	c.Check(fake.written, gc.DeepEquals, []string{"https://otherhost http://thirdhost"})
}

func (s *swiftSuite) TestUnsetCORSLastOriginWritesEmptyValue(c *gc.C) {
	fake := &fakeCaller{cors: "http://somehost"}
	cli := &Client{api: fake}

	err := cli.UnsetCORS("mycontainer", "http://somehost")
	c.Assert(err, jc.ErrorIsNil)
	c.Check(fake.written, gc.DeepEquals, []string{""})
}

func (s *swiftSuite) TestUnsetCORSRemovesOriginPair(c *gc.C) {
	fake := &fakeCaller{cors: "http://a.b.io https://a.b.io http://keep.io"}
	cli := &Client{api: fake}

	err := cli.UnsetCORS("mycontainer", "http://a.b.io https://a.b.io")
	c.Assert(err, jc.ErrorIsNil)
	c.Check(fake.written, gc.DeepEquals, []string{"http://keep.io"})
}

func (s *swiftSuite) TestCORSReadsMetadataHeader(c *gc.C) {
	fake := &fakeCaller{cors: "http://somehost"}
	cli := &Client{api: fake}

	value, err := cli.CORS("mycontainer")
	c.Assert(err, jc.ErrorIsNil)
	c.Check(value, gc.Equals, "http://somehost")
}
