// Copyright © 2018 NAME HERE <EMAIL ADDRESS>
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package server is an optional realtime push and dictionary-introspection
// companion to the core decode pipeline. Nothing under decode/, xtce/,
// ccsds/, or reassemble/ imports it.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"github.com/spacepacket/spp/decode"
	"github.com/spacepacket/spp/xtce"
)

// Server pushes decoded Records to subscribed websocket clients and
// exposes REST endpoints describing the XTCE dictionary it was started
// with.
type Server struct {
	// Configuration
	Host             string
	Port             int
	DictionaryPrefix string
	WebsocketPrefix  string

	// Definition is the loaded XTCE dictionary served by the REST
	// introspection endpoints. A subscription by container name is matched
	// against each Record's ContainerName directly.
	Definition *xtce.Definition

	// Records is fed by the caller's decode pipeline; Serve drains it
	// until the channel is closed or the process is interrupted.
	Records <-chan *decode.Record

	// internal state, all owned by handleSubscriptions()
	clients *map[*websocket.Conn]*Client

	addClientChan           chan *Client
	removeClientChan        chan *Client
	updateSubscriptionsChan chan *updateSubscriptionsMsg

	StopRequest chan os.Signal
}

// Serve starts the HTTP/websocket listener and the record pump, and
// blocks until StopRequest receives a signal.
func (s *Server) Serve() {
	if s.Port == 0 {
		s.Port = 8000
	}
	if s.DictionaryPrefix == "" {
		s.DictionaryPrefix = "/dictionary"
	}
	if s.WebsocketPrefix == "" {
		s.WebsocketPrefix = "/realtime/"
	}

	clients := make(map[*websocket.Conn]*Client)
	s.clients = &clients
	s.addClientChan = make(chan *Client, 20)
	s.removeClientChan = make(chan *Client, 20)
	s.updateSubscriptionsChan = make(chan *updateSubscriptionsMsg, 20)

	router := mux.NewRouter()
	dict := router.PathPrefix(s.DictionaryPrefix).Subrouter()
	dict.HandleFunc("/containers", func(w http.ResponseWriter, r *http.Request) { s.handleListContainers(w, r) }).Methods("GET")
	dict.HandleFunc("/containers/{name}", func(w http.ResponseWriter, r *http.Request) { s.handleContainer(w, r) }).Methods("GET")
	dict.HandleFunc("/parameters/{name}", func(w http.ResponseWriter, r *http.Request) { s.handleParameter(w, r) }).Methods("GET")

	router.HandleFunc(s.WebsocketPrefix, func(w http.ResponseWriter, r *http.Request) { s.serveWS(w, r) })

	go s.handleSubscriptions()
	go s.pumpRecords()

	addr := fmt.Sprintf("%s:%d", s.Host, s.Port)
	h := &http.Server{Addr: addr, Handler: router}

	s.StopRequest = make(chan os.Signal, 2)
	signal.Notify(s.StopRequest, os.Interrupt)

	go func() {
		log.Printf("spp server: listening on %s", addr)
		if err := h.ListenAndServe(); err != http.ErrServerClosed {
			log.Fatal(err)
		}
	}()

	<-s.StopRequest
	log.Printf("spp server: shutting down")
	h.Shutdown(context.Background())
	log.Printf("spp server: stopped")
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 16384,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

func (s *Server) serveWS(w http.ResponseWriter, req *http.Request) {
	conn, err := upgrader.Upgrade(w, req, nil)
	if err != nil {
		log.Println(err)
		return
	}
	client := newClient(s, conn)
	s.addClientChan <- client
}

// pumpRecords fans out each decoded Record to every client subscribed to
// its APID or to its selected container name.
func (s *Server) pumpRecords() {
	for rec := range s.Records {
		clients := *s.clients
		for _, c := range clients {
			if c.subscribedTo(rec) {
				sendJSON(recordJSON(rec), c)
			}
		}
	}
}

func (c *Client) subscribedTo(rec *decode.Record) bool {
	if c.apids[rec.APID] {
		return true
	}
	return c.containers[rec.ContainerName]
}

// handleSubscriptions centralizes all client-list and subscription-table
// mutation in one goroutine, so the record pump never blocks on a lock.
func (s *Server) handleSubscriptions() {
	for {
		select {
		case client := <-s.addClientChan:
			old := *s.clients
			updated := make(map[*websocket.Conn]*Client, len(old)+1)
			for k, v := range old {
				updated[k] = v
			}
			updated[client.conn] = client
			s.clients = &updated
			go client.writePump()
			go client.readPump()

		case client := <-s.removeClientChan:
			if client.conn != nil {
				client.conn.Close()
			}
			old := *s.clients
			updated := make(map[*websocket.Conn]*Client, len(old))
			for k, v := range old {
				if v != client {
					updated[k] = v
				}
			}
			s.clients = &updated

		case msg := <-s.updateSubscriptionsChan:
			if msg.isAdd {
				for _, apid := range msg.apids {
					msg.client.apids[apid] = true
				}
				for _, name := range msg.containers {
					msg.client.containers[name] = true
				}
			} else {
				for _, apid := range msg.apids {
					delete(msg.client.apids, apid)
				}
				for _, name := range msg.containers {
					delete(msg.client.containers, name)
				}
			}
			sendJSON(GenericResponse{Response: subscribeVerb(msg.isAdd), Token: msg.token}, msg.client)
		}
	}
}

func subscribeVerb(isAdd bool) string {
	if isAdd {
		return "subscribe"
	}
	return "unsubscribe"
}

//
// Client
//

// Client is the middleman between a websocket connection and the Server.
type Client struct {
	server     *Server
	conn       *websocket.Conn
	msgChan    chan []byte
	apids      map[int]bool
	containers map[string]bool
}

func newClient(s *Server, conn *websocket.Conn) *Client {
	return &Client{
		server:     s,
		conn:       conn,
		msgChan:    make(chan []byte, 32),
		apids:      make(map[int]bool),
		containers: make(map[string]bool),
	}
}

func (c *Client) readPump() {
	for {
		messageType, p, err := c.conn.ReadMessage()
		if messageType == websocket.CloseMessage || err != nil {
			c.server.removeClientChan <- c
			return
		}
		if messageType != websocket.TextMessage {
			continue
		}
		var req SubscriptionRequest
		if err := json.Unmarshal(p, &req); err != nil {
			log.Printf("spp server: websocket(%s) sent invalid json: %v", c.conn.RemoteAddr(), err)
			continue
		}
		switch req.Request {
		case "subscribe", "unsubscribe":
			c.server.updateSubscriptionsChan <- &updateSubscriptionsMsg{
				client:     c,
				isAdd:      req.Request == "subscribe",
				apids:      req.APIDs,
				containers: req.Containers,
				token:      req.Token,
			}
		case "ping":
			sendJSON(GenericResponse{Response: "ping", Token: req.Token}, c)
		default:
			log.Printf("spp server: websocket(%s) sent unknown request %q", c.conn.RemoteAddr(), req.Request)
		}
	}
}

func (c *Client) writePump() {
	for msg := range c.msgChan {
		if c.conn == nil {
			continue
		}
		if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			c.server.removeClientChan <- c
			return
		}
	}
}

func sendJSON(v interface{}, clients ...*Client) {
	b, err := json.Marshal(v)
	if err != nil {
		log.Printf("spp server: error marshaling message: %v", err)
		return
	}
	for _, c := range clients {
		c.msgChan <- b
	}
}

type updateSubscriptionsMsg struct {
	client     *Client
	isAdd      bool
	apids      []int
	containers []string
	token      interface{}
}

//
// Websocket message templates
//

// SubscriptionRequest is a client's subscribe/unsubscribe/ping request.
type SubscriptionRequest struct {
	Request    string      `json:"request"`
	Token      interface{} `json:"token"`
	APIDs      []int       `json:"apids,omitempty"`
	Containers []string    `json:"containers,omitempty"`
}

// GenericResponse acknowledges a request.
type GenericResponse struct {
	Response string      `json:"response"`
	Token    interface{} `json:"token"`
}

// RecordMessage is the realtime push format for one decoded packet.
type RecordMessage struct {
	Response      string                 `json:"response"`
	APID          int                    `json:"apid"`
	SequenceCount int                    `json:"sequence_count"`
	Container     string                 `json:"container"`
	Parameters    map[string]interface{} `json:"parameters"`
	Warnings      []string               `json:"warnings,omitempty"`
}

func recordJSON(rec *decode.Record) RecordMessage {
	params := make(map[string]interface{}, len(rec.Names()))
	for _, name := range rec.Names() {
		raw, derived, hasDerived, _ := rec.Value(name)
		if hasDerived {
			params[name] = map[string]string{"raw": raw.String(), "derived": derived.String()}
		} else {
			params[name] = raw.String()
		}
	}
	warnings := make([]string, len(rec.Warnings))
	for i, w := range rec.Warnings {
		warnings[i] = fmt.Sprintf("%s: %s", w.Kind, w.Message)
	}
	return RecordMessage{
		Response:      "record",
		APID:          rec.APID,
		SequenceCount: rec.SequenceCount,
		Container:     rec.ContainerName,
		Parameters:    params,
		Warnings:      warnings,
	}
}

//
// REST handlers
//

func prepareHeader(w http.ResponseWriter) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Content-Type", "application/json")
}

func (s *Server) handleListContainers(w http.ResponseWriter, r *http.Request) {
	prepareHeader(w)
	names := make([]string, 0, len(s.Definition.Containers))
	for name := range s.Definition.Containers {
		names = append(names, name)
	}
	json.NewEncoder(w).Encode(map[string]interface{}{"containers": names})
}

// handleContainer writes a container's entry list by hand, since Entry is
// a closed sum type (ParameterEntry/ContainerEntry) that struct tags
// can't discriminate on their own — the same reason the teacher's
// writePacketJSON/writePointJSON build their point lists with fmt.Fprint
// rather than encoding/json.Marshal.
func (s *Server) handleContainer(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]
	c, ok := s.Definition.Containers[name]
	if !ok {
		http.NotFound(w, r)
		return
	}
	prepareHeader(w)
	fmt.Fprintf(w, `{"name":%s,"abstract":%t,"base_container":%s,"entries":[`, jsonString(c.Name), c.Abstract, jsonString(c.BaseContainer))
	for i, e := range c.Entries {
		if i > 0 {
			fmt.Fprint(w, ",")
		}
		switch v := e.(type) {
		case xtce.ParameterEntry:
			fmt.Fprintf(w, `{"kind":"parameter","name":%s}`, jsonString(v.ParameterName))
		case xtce.ContainerEntry:
			fmt.Fprintf(w, `{"kind":"container","name":%s}`, jsonString(v.ContainerName))
		}
	}
	fmt.Fprint(w, `]}`)
}

func (s *Server) handleParameter(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]
	p, ok := s.Definition.Parameters[name]
	if !ok {
		http.NotFound(w, r)
		return
	}
	prepareHeader(w)
	t, ok := s.Definition.ParameterTypes[p.TypeName]
	kind := "unknown"
	if ok {
		kind = fmt.Sprintf("%T", t)
	}
	json.NewEncoder(w).Encode(map[string]interface{}{
		"name":       p.Name,
		"type":       p.TypeName,
		"type_kind":  strings.TrimPrefix(kind, "*xtce."),
	})
}

func jsonString(s string) string {
	b, _ := json.Marshal(s)
	return string(b)
}
