package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spacepacket/spp/decode"
	"github.com/spacepacket/spp/xtce"
)

func testDefinition() *xtce.Definition {
	var buf = `<?xml version="1.0"?>
<SpaceSystem name="Demo">
  <TelemetryMetaData rootContainer="Base">
    <ParameterTypeSet>
      <IntegerParameterType name="u8">
        <IntegerDataEncoding sizeInBits="8" encoding="unsigned"/>
      </IntegerParameterType>
    </ParameterTypeSet>
    <ParameterSet>
      <Parameter name="Counter" parameterTypeRef="u8"/>
    </ParameterSet>
    <ContainerSet>
      <SequenceContainer name="Base">
        <EntryList>
          <ParameterRefEntry parameterRef="Counter"/>
        </EntryList>
      </SequenceContainer>
    </ContainerSet>
  </TelemetryMetaData>
</SpaceSystem>`
	def, err := xtce.Load(strings.NewReader(buf))
	if err != nil {
		panic(err)
	}
	return def
}

func TestHandleListContainers(t *testing.T) {
	s := &Server{Definition: testDefinition()}
	req := httptest.NewRequest("GET", "/dictionary/containers", nil)
	w := httptest.NewRecorder()
	s.handleListContainers(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
	var body map[string][]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Contains(t, body["containers"], "Base")
}

func TestHandleContainer(t *testing.T) {
	s := &Server{Definition: testDefinition()}
	req := httptest.NewRequest("GET", "/dictionary/containers/Base", nil)
	req = muxSetVars(req, map[string]string{"name": "Base"})
	w := httptest.NewRecorder()
	s.handleContainer(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"Counter"`)
}

func TestHandleParameterNotFound(t *testing.T) {
	s := &Server{Definition: testDefinition()}
	req := httptest.NewRequest("GET", "/dictionary/parameters/Nope", nil)
	req = muxSetVars(req, map[string]string{"name": "Nope"})
	w := httptest.NewRecorder()
	s.handleParameter(w, req)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func muxSetVars(r *http.Request, vars map[string]string) *http.Request {
	return mux.SetURLVars(r, vars)
}

func TestClientSubscribedTo(t *testing.T) {
	c := &Client{apids: map[int]bool{7: true}, containers: map[string]bool{"Leaf": true}}
	assert.True(t, c.subscribedTo(&decode.Record{APID: 7}))
	assert.True(t, c.subscribedTo(&decode.Record{APID: 99, ContainerName: "Leaf"}))
	assert.False(t, c.subscribedTo(&decode.Record{APID: 99, ContainerName: "Other"}))
}

func TestRecordJSON(t *testing.T) {
	rec := decode.NewRecord([]byte{0x01})
	rec.APID = 7
	rec.SequenceCount = 1
	msg := recordJSON(rec)
	assert.Equal(t, 7, msg.APID)
	assert.Equal(t, "record", msg.Response)
}
